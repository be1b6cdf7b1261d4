package out

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"minesync/internal/modules/mirror/domain"
	mirrorout "minesync/internal/modules/mirror/port/out"
)

const (
	notificationsDest  = "org.freedesktop.Notifications"
	notificationsPath  = "/org/freedesktop/Notifications"
	notifyMethod       = "org.freedesktop.Notifications.Notify"
	noticeExpireMillis = int32(8000)
)

// DesktopNotices raises mirror notices on the user's session bus.
type DesktopNotices struct {
	appName string
	mu      sync.Mutex
	conn    *dbus.Conn
}

func NewDesktopNotices(appName string) *DesktopNotices {
	return &DesktopNotices{appName: appName}
}

var _ mirrorout.NoticeSink = (*DesktopNotices)(nil)

func (d *DesktopNotices) Notify(ctx context.Context, notice domain.Notice) error {
	conn, err := d.session()
	if err != nil {
		return err
	}
	icon, urgency := "dialog-information", byte(1)
	if notice.Level == domain.NoticeError {
		icon, urgency = "dialog-error", byte(2)
	}
	obj := conn.Object(notificationsDest, notificationsPath)
	call := obj.CallWithContext(ctx, notifyMethod, 0,
		d.appName,
		uint32(0),
		icon,
		notice.Title,
		notice.Message,
		[]string{},
		map[string]dbus.Variant{"urgency": dbus.MakeVariant(urgency)},
		noticeExpireMillis,
	)
	if call.Err != nil {
		return fmt.Errorf("send desktop notice: %w", call.Err)
	}
	return nil
}

func (d *DesktopNotices) session() (*dbus.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil && d.conn.Connected() {
		return d.conn, nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	d.conn = conn
	return conn, nil
}

func (d *DesktopNotices) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}
