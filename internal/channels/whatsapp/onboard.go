package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	qrterminal "github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// quietLogger discards everything but errors, keeping onboarding output
// limited to the QR code and pairing status.
type quietLogger struct{ slogAdapter }

func (quietLogger) Warnf(string, ...interface{})  {}
func (quietLogger) Infof(string, ...interface{})  {}
func (quietLogger) Debugf(string, ...interface{}) {}
func (l quietLogger) Sub(string) waLog.Logger     { return l }

// Onboard displays a QR code on stdout for WhatsApp Web pairing and blocks
// until the device finishes its initial sync. Run once per device before
// Start will succeed.
func Onboard(dbPath string) error {
	ctx := context.Background()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return fmt.Errorf("create whatsapp store directory: %w", err)
	}
	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(on)", quietLogger{})
	if err != nil {
		return fmt.Errorf("open whatsapp device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("get whatsapp device: %w", err)
	}

	client := whatsmeow.NewClient(device, quietLogger{})
	if client.Store.ID != nil {
		fmt.Printf("Already paired as %s. Delete %s to re-pair.\n", client.Store.ID.User, dbPath)
		return nil
	}

	connected := make(chan struct{}, 1)
	client.AddEventHandler(func(evt interface{}) {
		if _, ok := evt.(*events.Connected); ok {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})

	qrChan, _ := client.GetQRChannel(ctx)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect whatsapp: %w", err)
	}
	defer client.Disconnect()

	fmt.Println("Scan this QR code with WhatsApp: Settings > Linked Devices > Link a Device")
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
		case "success":
			fmt.Println("Pairing succeeded, finishing setup...")
		case "timeout":
			return fmt.Errorf("QR code timed out, run onboard again")
		}
	}

	select {
	case <-connected:
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timed out waiting for connection after pairing")
	}
	time.Sleep(15 * time.Second) // let whatsmeow finish its initial history sync

	if client.Store.ID != nil {
		fmt.Printf("Paired as %s\n", client.Store.ID.User)
	}
	return nil
}
