// Package notify declares the collaborators orderflow talks to after state
// changes: the realtime payment channel, push delivery and the user
// directory. Delivery itself lives outside this module.
package notify

import (
	"context"
	"errors"
	"sync"
)

// ErrUnknownUser is returned by a UserDirectory for ids it does not know.
var ErrUnknownUser = errors.New("notify: unknown user")

type Role string

const (
	RoleCustomer Role = "customer"
	RoleCourier  Role = "courier"
	RoleAdmin    Role = "admin"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Role  Role   `json:"role"`
}

// IsCourier reports whether the user may take orders.
func (u *User) IsCourier() bool { return u != nil && u.Role == RoleCourier }

// UserDirectory resolves users and their roles.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	ListCouriers(ctx context.Context) ([]*User, error)
}

// NotificationChannel pushes payment outcomes to whoever is watching a
// payment id in real time.
type NotificationChannel interface {
	NotifyPaymentSuccess(ctx context.Context, paymentID, subjectID string) error
	NotifyPaymentError(ctx context.Context, paymentID, subjectID, reason string) error
}

// PushNotifier delivers mobile push messages.
type PushNotifier interface {
	SendToUser(ctx context.Context, userID, title, body string, data map[string]string) error
	SendToDevice(ctx context.Context, token, title, body string, payload map[string]string) error
}

// Nop implements NotificationChannel and PushNotifier by doing nothing.
type Nop struct{}

func (Nop) NotifyPaymentSuccess(context.Context, string, string) error       { return nil }
func (Nop) NotifyPaymentError(context.Context, string, string, string) error { return nil }
func (Nop) SendToUser(context.Context, string, string, string, map[string]string) error {
	return nil
}
func (Nop) SendToDevice(context.Context, string, string, string, map[string]string) error {
	return nil
}

// StaticDirectory is an in-memory UserDirectory.
type StaticDirectory struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewStaticDirectory returns a directory seeded with users.
func NewStaticDirectory(users ...*User) *StaticDirectory {
	d := &StaticDirectory{users: make(map[string]*User, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// Put adds or replaces a user.
func (d *StaticDirectory) Put(u *User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *StaticDirectory) GetUser(_ context.Context, userID string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[userID]
	if !ok {
		return nil, ErrUnknownUser
	}
	c := *u
	return &c, nil
}

func (d *StaticDirectory) ListCouriers(_ context.Context) ([]*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*User
	for _, u := range d.users {
		if u.IsCourier() {
			c := *u
			out = append(out, &c)
		}
	}
	return out, nil
}
