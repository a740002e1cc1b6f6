package repositories

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"libraryapi/internal/models"
)

// Repositories take an explicit *gorm.DB so the service layer can thread a
// single transaction through several of them; a nil handle falls back to the
// pooled connection.

type UserRepository interface {
	GetByID(db *gorm.DB, id int) (*models.User, error)
	GetByEmail(db *gorm.DB, email string) (*models.User, error)
	List(db *gorm.DB) ([]models.User, error)
	Create(db *gorm.DB, user *models.User) error
	UpdateFields(db *gorm.DB, id int, fields map[string]interface{}) error
	Delete(db *gorm.DB, id int) error
	NextID(db *gorm.DB) (int, error)
	AddFine(db *gorm.DB, id int, amount decimal.Decimal) error
}

type BookRepository interface {
	GetByISBN(db *gorm.DB, isbn int64) (*models.Book, error)
	List(db *gorm.DB) ([]models.Book, error)
	Create(db *gorm.DB, book *models.Book) error
	UpdateFields(db *gorm.DB, isbn int64, fields map[string]interface{}) error
	Delete(db *gorm.DB, isbn int64) error
	MarkUnavailable(db *gorm.DB, isbn int64) (bool, error)
	MarkAvailable(db *gorm.DB, isbn int64) error
}

type CheckoutRepository interface {
	Create(db *gorm.DB, checkout *models.Checkout) error
	FindOpen(db *gorm.DB, isbn int64, userID int) (*models.Checkout, error)
	MarkReturned(db *gorm.DB, checkoutID int, returnedAt time.Time) (bool, error)
	OpenISBNsByUser(db *gorm.DB, userID int) ([]int64, error)
	CountOpenByUser(db *gorm.DB, userID int) (int64, error)
}

// concrete implementations

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(db *gorm.DB, id int) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "user_id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(db *gorm.DB, email string) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) List(db *gorm.DB) ([]models.User, error) {
	if db == nil {
		db = r.db
	}
	var users []models.User
	if err := db.Order("user_id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *userRepository) Create(db *gorm.DB, user *models.User) error {
	if db == nil {
		db = r.db
	}
	return db.Create(user).Error
}

func (r *userRepository) UpdateFields(db *gorm.DB, id int, fields map[string]interface{}) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.User{}).
		Where("user_id = ?", id).
		Updates(fields).
		Error
}

func (r *userRepository) Delete(db *gorm.DB, id int) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.User{}, "user_id = ?", id).Error
}

// NextID computes max(user_id)+1, starting at 100000 on an empty table.
// Callers run it inside the create transaction and retry on a unique
// violation, since MAX()+1 is racy under concurrent registrations.
func (r *userRepository) NextID(db *gorm.DB) (int, error) {
	if db == nil {
		db = r.db
	}
	var next int
	err := db.Model(&models.User{}).
		Select("COALESCE(MAX(user_id) + 1, 100000)").
		Scan(&next).Error
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (r *userRepository) AddFine(db *gorm.DB, id int, amount decimal.Decimal) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.User{}).
		Where("user_id = ?", id).
		UpdateColumn("fine_balance", gorm.Expr("fine_balance + ?", amount)).
		Error
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) GetByISBN(db *gorm.DB, isbn int64) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "isbn = ?", isbn).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) List(db *gorm.DB) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var books []models.Book
	if err := db.Order("isbn").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) UpdateFields(db *gorm.DB, isbn int64, fields map[string]interface{}) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).
		Where("isbn = ?", isbn).
		Updates(fields).
		Error
}

func (r *bookRepository) Delete(db *gorm.DB, isbn int64) error {
	if db == nil {
		db = r.db
	}
	return db.Delete(&models.Book{}, "isbn = ?", isbn).Error
}

// MarkUnavailable flips the availability flag off, guarded by the current
// state so two concurrent checkouts of the same book cannot both succeed.
// Returns false when the book was already checked out.
func (r *bookRepository) MarkUnavailable(db *gorm.DB, isbn int64) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("isbn = ? AND is_available = ?", isbn, true).
		Update("is_available", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *bookRepository) MarkAvailable(db *gorm.DB, isbn int64) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).
		Where("isbn = ?", isbn).
		Update("is_available", true).
		Error
}

type checkoutRepository struct {
	db *gorm.DB
}

func NewCheckoutRepository(db *gorm.DB) CheckoutRepository {
	return &checkoutRepository{db: db}
}

func (r *checkoutRepository) Create(db *gorm.DB, checkout *models.Checkout) error {
	if db == nil {
		db = r.db
	}
	return db.Create(checkout).Error
}

func (r *checkoutRepository) FindOpen(db *gorm.DB, isbn int64, userID int) (*models.Checkout, error) {
	if db == nil {
		db = r.db
	}
	var checkout models.Checkout
	err := db.
		Where("isbn = ? AND user_id = ? AND return_date IS NULL", isbn, userID).
		First(&checkout).Error
	if err != nil {
		return nil, err
	}
	return &checkout, nil
}

// MarkReturned stamps the return time, guarded by return_date IS NULL so a
// concurrent double-return closes exactly one row. Returns false when the
// checkout was already closed.
func (r *checkoutRepository) MarkReturned(db *gorm.DB, checkoutID int, returnedAt time.Time) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Checkout{}).
		Where("checkout_id = ? AND return_date IS NULL", checkoutID).
		Update("return_date", returnedAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *checkoutRepository) OpenISBNsByUser(db *gorm.DB, userID int) ([]int64, error) {
	if db == nil {
		db = r.db
	}
	var isbns []int64
	err := db.Model(&models.Checkout{}).
		Where("user_id = ? AND return_date IS NULL", userID).
		Order("checkout_id").
		Pluck("isbn", &isbns).Error
	if err != nil {
		return nil, err
	}
	return isbns, nil
}

func (r *checkoutRepository) CountOpenByUser(db *gorm.DB, userID int) (int64, error) {
	if db == nil {
		db = r.db
	}
	var count int64
	err := db.Model(&models.Checkout{}).
		Where("user_id = ? AND return_date IS NULL", userID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
