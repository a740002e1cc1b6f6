package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a library member. UserID is externally assignable (seed data,
// bulk imports) or assigned by the registration flow.
type User struct {
	UserID      int             `gorm:"primaryKey" json:"userId"`
	Name        string          `gorm:"size:255;not null" json:"name"`
	Email       string          `gorm:"size:255;not null;uniqueIndex" json:"email"`
	MemberSince time.Time       `gorm:"type:date;not null" json:"memberSince"`
	FineBalance decimal.Decimal `gorm:"type:numeric(10,2);not null;default:0" json:"fineBalance"`
	Address     *string         `gorm:"size:500" json:"address"`
	PhoneNumber *string         `gorm:"size:20" json:"phoneNumber"`
}

// Book is a catalogue entry. One inventory slot per ISBN: IsAvailable is
// false exactly while an open checkout references the ISBN.
type Book struct {
	ISBN        int64   `gorm:"primaryKey" json:"isbn"`
	Title       string  `gorm:"size:500;not null" json:"title"`
	Author      string  `gorm:"size:255;not null" json:"author"`
	Publisher   *string `gorm:"size:255" json:"publisher"`
	Year        *int    `json:"year"`
	Pages       *int    `json:"pages"`
	Genre       *string `gorm:"size:100" json:"genre"`
	Location    *string `gorm:"size:100" json:"location"`
	IsAvailable bool    `gorm:"not null;default:true" json:"isAvailable"`
}

// Checkout links a user to a book for one loan. UserID and ISBN are plain
// indexed references, not foreign keys: closed checkouts are history and
// must survive later deletion of the user or book they point at. Deleting
// an entity with an *open* checkout is blocked at the service layer.
type Checkout struct {
	CheckoutID   int        `gorm:"primaryKey;autoIncrement" json:"checkoutId"`
	UserID       int        `gorm:"not null;index" json:"userId"`
	ISBN         int64      `gorm:"not null;index" json:"isbn"`
	CheckoutDate time.Time  `gorm:"not null" json:"checkoutDate"`
	DueDate      time.Time  `gorm:"not null" json:"dueDate"`
	ReturnDate   *time.Time `json:"returnDate"`
}
