//go:build ignore
// +build ignore

// Seeds the library database with sample users, books and checkout history.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run ./scripts/seed.go
//
// The script is idempotent in the simplest way: it refuses to run against a
// database that already contains users.
package main

import (
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"libraryapi/internal/models"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Book{}, &models.Checkout{}); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	var existing int64
	if err := db.Model(&models.User{}).Count(&existing).Error; err != nil {
		log.Fatalf("failed to count users: %v", err)
	}
	if existing > 0 {
		log.Println("Database already contains data. Skipping initialization.")
		return
	}

	users := []models.User{
		{
			UserID:      987654,
			Name:        "Nathan Cayden",
			Email:       "nathan@example.com",
			MemberSince: time.Date(2006, 4, 15, 0, 0, 0, 0, time.UTC),
			FineBalance: decimal.Zero,
			Address:     strPtr("5432 Street"),
			PhoneNumber: strPtr("5555555555"),
		},
		{
			UserID:      123456,
			Name:        "Austin Finnagan",
			Email:       "austin@example.com",
			MemberSince: time.Date(2010, 8, 22, 0, 0, 0, 0, time.UTC),
			FineBalance: decimal.RequireFromString("2.50"),
			Address:     strPtr("1234 Avenue"),
			PhoneNumber: strPtr("5551234567"),
		},
		{
			UserID:      555555,
			Name:        "Jeharya Vallerija",
			Email:       "jeharya@example.com",
			MemberSince: time.Date(2015, 1, 10, 0, 0, 0, 0, time.UTC),
			FineBalance: decimal.Zero,
			Address:     strPtr("9876 Boulevard"),
			PhoneNumber: strPtr("5559876543"),
		},
		{
			UserID:      111111,
			Name:        "Madisyn Roope",
			Email:       "madisyn@example.com",
			MemberSince: time.Date(2020, 3, 5, 0, 0, 0, 0, time.UTC),
			FineBalance: decimal.Zero,
			Address:     strPtr("777 Park Lane"),
			PhoneNumber: strPtr("5557778888"),
		},
	}

	books := []models.Book{
		{ISBN: 9780743273565, Title: "The Great Gatsby", Author: "F. Scott Fitzgerald", Publisher: strPtr("Scribner"), Year: intPtr(1925), Pages: intPtr(180), Genre: strPtr("Fiction"), Location: strPtr("3rd Floor, A-12"), IsAvailable: false},
		{ISBN: 9780452284234, Title: "To Kill a Mockingbird", Author: "Harper Lee", Publisher: strPtr("Harper Perennial"), Year: intPtr(1960), Pages: intPtr(324), Genre: strPtr("Fiction"), Location: strPtr("3rd Floor, B-7"), IsAvailable: false},
		{ISBN: 9780061120084, Title: "Brave New World", Author: "Aldous Huxley", Publisher: strPtr("Harper Perennial"), Year: intPtr(1932), Pages: intPtr(288), Genre: strPtr("Science Fiction"), Location: strPtr("2nd Floor, C-3"), IsAvailable: false},
		{ISBN: 9780140449136, Title: "The Odyssey", Author: "Homer", Publisher: strPtr("Penguin Classics"), Year: intPtr(-800), Pages: intPtr(541), Genre: strPtr("Epic Poetry"), Location: strPtr("4th Floor, D-1"), IsAvailable: true},
		{ISBN: 9780553213119, Title: "Moby Dick", Author: "Herman Melville", Publisher: strPtr("Bantam Classics"), Year: intPtr(1851), Pages: intPtr(720), Genre: strPtr("Fiction"), Location: strPtr("3rd Floor, A-15"), IsAvailable: true},
		{ISBN: 9780316769174, Title: "The Catcher in the Rye", Author: "J.D. Salinger", Publisher: strPtr("Little, Brown and Company"), Year: intPtr(1951), Pages: intPtr(214), Genre: strPtr("Fiction"), Location: strPtr("3rd Floor, B-3"), IsAvailable: false},
		{ISBN: 9780451524935, Title: "1984", Author: "George Orwell", Publisher: strPtr("Signet Classic"), Year: intPtr(1949), Pages: intPtr(328), Genre: strPtr("Dystopian Fiction"), Location: strPtr("2nd Floor, D-8"), IsAvailable: true},
		{ISBN: 9780142437247, Title: "Don Quixote", Author: "Miguel de Cervantes", Publisher: strPtr("Penguin Classics"), Year: intPtr(1605), Pages: intPtr(1072), Genre: strPtr("Fiction"), Location: strPtr("4th Floor, A-1"), IsAvailable: true},
	}

	now := time.Now().UTC()
	returned := now.AddDate(0, 0, -12)
	checkouts := []models.Checkout{
		// Nathan has three books out.
		{UserID: 987654, ISBN: 9780743273565, CheckoutDate: now.AddDate(0, 0, -11), DueDate: now.AddDate(0, 0, 19)},
		{UserID: 987654, ISBN: 9780452284234, CheckoutDate: now.AddDate(0, 0, -6), DueDate: now.AddDate(0, 0, 24)},
		{UserID: 987654, ISBN: 9780061120084, CheckoutDate: now.AddDate(0, 0, -4), DueDate: now.AddDate(0, 0, 26)},
		// Austin has one book out, already overdue.
		{UserID: 123456, ISBN: 9780316769174, CheckoutDate: now.AddDate(0, 0, -20), DueDate: now.AddDate(0, 0, -5)},
		// Jeharya returned a book on time (historical record).
		{UserID: 555555, ISBN: 9780451524935, CheckoutDate: now.AddDate(0, 0, -40), DueDate: now.AddDate(0, 0, -10), ReturnDate: &returned},
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&users).Error; err != nil {
			return err
		}
		if err := tx.Create(&books).Error; err != nil {
			return err
		}
		return tx.Create(&checkouts).Error
	})
	if err != nil {
		log.Fatalf("failed to seed database: %v", err)
	}

	log.Println("Database initialized successfully!")
	log.Printf("Added %d users", len(users))
	log.Printf("Added %d books", len(books))
	log.Printf("Added %d checkout records", len(checkouts))
}
