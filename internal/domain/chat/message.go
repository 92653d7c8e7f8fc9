package chat

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Role identifies who is behind a live connection.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleDispatcher Role = "dispatcher"
	RoleAdmin      Role = "admin"
)

// ParseRole maps a raw string to a known connection role.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleCustomer, RoleDispatcher, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}

// Sender is the conversational party a message belongs to. The storefront
// historically labels the courier side "livreur"; the wire format keeps it.
type Sender string

const (
	SenderClient  Sender = "client"
	SenderLivreur Sender = "livreur"
)

// Sender maps a connection role to its conversational party.
// Dispatchers and admins both speak for the courier side.
func (r Role) Sender() Sender {
	if r == RoleCustomer {
		return SenderClient
	}
	return SenderLivreur
}

// Counterpart returns the other conversational party.
func (s Sender) Counterpart() Sender {
	if s == SenderClient {
		return SenderLivreur
	}
	return SenderClient
}

// ParseSender maps a raw string to a known sender.
func ParseSender(s string) (Sender, bool) {
	switch Sender(s) {
	case SenderClient, SenderLivreur:
		return Sender(s), true
	default:
		return "", false
	}
}

// MaxContentLength bounds a single chat message, in runes.
const MaxContentLength = 2000

// Message is one immutable chat entry tied to an order. Only ReadAt may
// change after creation, when the counterpart acknowledges it.
type Message struct {
	ID        int64
	OrderID   string
	Sender    Sender
	Content   string
	CreatedAt time.Time
	ReadAt    *time.Time
}

// ValidateContent enforces the non-empty and length bounds for one message.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return fmt.Errorf("%w: content exceeds %d characters", ErrInvalidMessage, MaxContentLength)
	}
	return nil
}
