package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"libraryapi/internal/models"
	"libraryapi/internal/repositories"
)

// ─── Loan Policy Constants ────────────────────────────────────────────────────

const (
	// LoanPeriodDays is the fixed loan period. The due date is the last
	// instant (23:59:59) of the day that falls LoanPeriodDays after checkout.
	LoanPeriodDays = 30

	// FirstUserID is the identifier assigned to the first auto-registered
	// user; subsequent users get max(user_id)+1.
	FirstUserID = 100000
)

// FinePerDay is the late fee accrued per full day overdue.
var FinePerDay = decimal.RequireFromString("0.50")

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrBookNotFound is returned when the referenced book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrBookNotAvailable is returned when a checkout is attempted on a book
	// that is already checked out.
	ErrBookNotAvailable = errors.New("book is not available")

	// ErrNoActiveCheckout is returned when a return is attempted and no open
	// checkout matches the (book, user) pair.
	ErrNoActiveCheckout = errors.New("no active checkout found for this book and user")

	// ErrEmailTaken is returned when a create or update would duplicate
	// another user's email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrISBNTaken is returned when a create or update would duplicate an
	// existing book's ISBN.
	ErrISBNTaken = errors.New("book with this ISBN already exists")

	// ErrUserHasCheckouts blocks deletion of a user who still has books out.
	ErrUserHasCheckouts = errors.New("cannot delete user with active book checkouts, please return all books first")

	// ErrBookCheckedOut blocks deletion of a book that is currently out.
	ErrBookCheckedOut = errors.New("cannot delete book that is currently checked out")
)

// ─── Inputs & Results ─────────────────────────────────────────────────────────

// UserInput carries the mutable user fields for create and full update.
// UserID is honored only by the registration flow (seed/import path); zero
// means assign the next identifier.
type UserInput struct {
	UserID      int
	Name        string
	Email       string
	Address     *string
	PhoneNumber *string
}

// UserPatch carries a partial update; nil fields are left untouched.
type UserPatch struct {
	Name        *string
	Email       *string
	Address     *string
	PhoneNumber *string
}

// BookInput carries the full catalog record for create and full update.
type BookInput struct {
	ISBN      int64
	Title     string
	Author    string
	Publisher *string
	Year      *int
	Pages     *int
	Genre     *string
	Location  *string
}

// BookPatch carries a partial update; nil fields are left untouched.
// The ISBN itself can only change through a full update.
type BookPatch struct {
	Title     *string
	Author    *string
	Publisher *string
	Year      *int
	Pages     *int
	Genre     *string
	Location  *string
}

// CheckoutResult reports a successful checkout.
type CheckoutResult struct {
	Checkout  models.Checkout
	BookTitle string
	UserName  string
}

// ReturnResult reports a completed return. FeeCharged is true whenever the
// book came back past the due date, even if the truncated day count makes
// the fee 0.00.
type ReturnResult struct {
	Checkout   models.Checkout
	LateFee    decimal.Decimal
	FeeCharged bool
}

// ─── Service Interface ────────────────────────────────────────────────────────

// LibraryService defines the application-level operations of the library system.
type LibraryService interface {
	GetUser(id int) (*models.User, []int64, error)
	ListUsers() ([]models.User, error)
	RegisterUser(in UserInput) (*models.User, error)
	UpdateUser(id int, in UserInput) error
	PatchUser(id int, patch UserPatch) error
	DeleteUser(id int) error

	GetBook(isbn int64) (*models.Book, error)
	ListBooks() ([]models.Book, error)
	AddBook(in BookInput) (*models.Book, error)
	UpdateBook(isbn int64, in BookInput) error
	PatchBook(isbn int64, patch BookPatch) error
	DeleteBook(isbn int64) error

	CheckoutBook(userID int, isbn int64) (*CheckoutResult, error)
	ReturnBook(isbn int64, userID int) (*ReturnResult, error)
}

// ─── Implementation ───────────────────────────────────────────────────────────

type libraryService struct {
	db           *gorm.DB
	userRepo     repositories.UserRepository
	bookRepo     repositories.BookRepository
	checkoutRepo repositories.CheckoutRepository
}

// NewLibraryService wires up all dependencies and returns a LibraryService.
func NewLibraryService(
	db *gorm.DB,
	userRepo repositories.UserRepository,
	bookRepo repositories.BookRepository,
	checkoutRepo repositories.CheckoutRepository,
) LibraryService {
	return &libraryService{
		db:           db,
		userRepo:     userRepo,
		bookRepo:     bookRepo,
		checkoutRepo: checkoutRepo,
	}
}

// ─── User Queries ─────────────────────────────────────────────────────────────

// GetUser returns the user's profile together with the ISBNs of the books
// they currently have out.
func (s *libraryService) GetUser(id int) (*models.User, []int64, error) {
	user, err := s.userRepo.GetByID(nil, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}
	isbns, err := s.checkoutRepo.OpenISBNsByUser(nil, id)
	if err != nil {
		return nil, nil, err
	}
	return user, isbns, nil
}

// ListUsers returns all registered users.
func (s *libraryService) ListUsers() ([]models.User, error) {
	return s.userRepo.List(nil)
}

// ─── User Management ──────────────────────────────────────────────────────────

// RegisterUser creates a user. The email must be unused. When no explicit
// identifier is supplied the next one (max+1, starting at FirstUserID) is
// claimed inside the transaction, with a single retry if a concurrent
// registration wins the same identifier.
func (s *libraryService) RegisterUser(in UserInput) (*models.User, error) {
	user := &models.User{
		UserID:      in.UserID,
		Name:        in.Name,
		Email:       in.Email,
		MemberSince: today(),
		FineBalance: decimal.Zero,
		Address:     in.Address,
		PhoneNumber: in.PhoneNumber,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ensureEmailFree(tx, in.Email, 0); err != nil {
			return err
		}
		return s.createUserWithRetry(tx, user, in.UserID == 0)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] RegisterUser: created user %q (id=%d)", user.Name, user.UserID)
	return user, nil
}

// UpdateUser replaces every mutable field of the user. A changed email is
// re-validated for uniqueness before applying.
func (s *libraryService) UpdateUser(id int, in UserInput) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.userRepo.GetByID(tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if in.Email != existing.Email {
			if err := s.ensureEmailFree(tx, in.Email, id); err != nil {
				return err
			}
		}
		return s.userRepo.UpdateFields(tx, id, map[string]interface{}{
			"name":         in.Name,
			"email":        in.Email,
			"address":      in.Address,
			"phone_number": in.PhoneNumber,
		})
	})
	if err != nil {
		return err
	}
	log.Printf("[INFO] UpdateUser: replaced user %d", id)
	return nil
}

// PatchUser applies only the fields present in the patch; everything else is
// left untouched.
func (s *libraryService) PatchUser(id int, patch UserPatch) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.userRepo.GetByID(tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if patch.Email != nil && *patch.Email != existing.Email {
			if err := s.ensureEmailFree(tx, *patch.Email, id); err != nil {
				return err
			}
		}

		fields := map[string]interface{}{}
		if patch.Name != nil {
			fields["name"] = *patch.Name
		}
		if patch.Email != nil {
			fields["email"] = *patch.Email
		}
		if patch.Address != nil {
			fields["address"] = *patch.Address
		}
		if patch.PhoneNumber != nil {
			fields["phone_number"] = *patch.PhoneNumber
		}
		if len(fields) == 0 {
			return nil
		}
		return s.userRepo.UpdateFields(tx, id, fields)
	})
	if err != nil {
		return err
	}
	log.Printf("[INFO] PatchUser: patched user %d", id)
	return nil
}

// DeleteUser removes a user, provided they have no open checkouts.
func (s *libraryService) DeleteUser(id int) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.userRepo.GetByID(tx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		open, err := s.checkoutRepo.CountOpenByUser(tx, id)
		if err != nil {
			return err
		}
		if open > 0 {
			log.Printf("[WARN] DeleteUser: user %d still has %d open checkout(s)", id, open)
			return ErrUserHasCheckouts
		}
		return s.userRepo.Delete(tx, id)
	})
	if err != nil {
		return err
	}
	log.Printf("[INFO] DeleteUser: deleted user %d", id)
	return nil
}

// ─── Book Queries ─────────────────────────────────────────────────────────────

// GetBook returns the full catalog record for one ISBN.
func (s *libraryService) GetBook(isbn int64) (*models.Book, error) {
	book, err := s.bookRepo.GetByISBN(nil, isbn)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	return book, nil
}

// ListBooks returns the whole catalogue.
func (s *libraryService) ListBooks() ([]models.Book, error) {
	return s.bookRepo.List(nil)
}

// ─── Book Management ──────────────────────────────────────────────────────────

// AddBook creates a catalog entry; the ISBN must be unused. New books start
// available.
func (s *libraryService) AddBook(in BookInput) (*models.Book, error) {
	book := &models.Book{
		ISBN:        in.ISBN,
		Title:       in.Title,
		Author:      in.Author,
		Publisher:   in.Publisher,
		Year:        in.Year,
		Pages:       in.Pages,
		Genre:       in.Genre,
		Location:    in.Location,
		IsAvailable: true,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.ensureISBNFree(tx, in.ISBN); err != nil {
			return err
		}
		return s.bookRepo.Create(tx, book)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] AddBook: added %q (isbn=%d)", book.Title, book.ISBN)
	return book, nil
}

// UpdateBook replaces every mutable catalog field. An ISBN change (unusual,
// but allowed on full update) is re-validated for uniqueness first.
func (s *libraryService) UpdateBook(isbn int64, in BookInput) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.bookRepo.GetByISBN(tx, isbn); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		fields := map[string]interface{}{
			"title":     in.Title,
			"author":    in.Author,
			"publisher": in.Publisher,
			"year":      in.Year,
			"pages":     in.Pages,
			"genre":     in.Genre,
			"location":  in.Location,
		}
		if in.ISBN != isbn {
			if err := s.ensureISBNFree(tx, in.ISBN); err != nil {
				return err
			}
			fields["isbn"] = in.ISBN
		}
		return s.bookRepo.UpdateFields(tx, isbn, fields)
	})
	if err != nil {
		return err
	}
	log.Printf("[INFO] UpdateBook: replaced book %d", isbn)
	return nil
}

// PatchBook applies only the fields present in the patch.
func (s *libraryService) PatchBook(isbn int64, patch BookPatch) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.bookRepo.GetByISBN(tx, isbn); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		fields := map[string]interface{}{}
		if patch.Title != nil {
			fields["title"] = *patch.Title
		}
		if patch.Author != nil {
			fields["author"] = *patch.Author
		}
		if patch.Publisher != nil {
			fields["publisher"] = *patch.Publisher
		}
		if patch.Year != nil {
			fields["year"] = *patch.Year
		}
		if patch.Pages != nil {
			fields["pages"] = *patch.Pages
		}
		if patch.Genre != nil {
			fields["genre"] = *patch.Genre
		}
		if patch.Location != nil {
			fields["location"] = *patch.Location
		}
		if len(fields) == 0 {
			return nil
		}
		return s.bookRepo.UpdateFields(tx, isbn, fields)
	})
	if err != nil {
		return err
	}
	log.Printf("[INFO] PatchBook: patched book %d", isbn)
	return nil
}

// DeleteBook removes a catalog entry, provided the book is not out on loan.
func (s *libraryService) DeleteBook(isbn int64) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByISBN(tx, isbn)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		if !book.IsAvailable {
			log.Printf("[WARN] DeleteBook: book %d is currently checked out", isbn)
			return ErrBookCheckedOut
		}
		return s.bookRepo.Delete(tx, isbn)
	})
	if err != nil {
		return err
	}
	log.Printf("[INFO] DeleteBook: deleted book %d", isbn)
	return nil
}

// ─── Checkout ─────────────────────────────────────────────────────────────────

// CheckoutBook implements the transactional checkout flow.
//
// Both the user and the book must exist. The availability flag is flipped
// with a state-guarded UPDATE, so of two concurrent checkouts on the same
// book exactly one sees a row change and the other fails with
// ErrBookNotAvailable. The open Checkout record is created in the same
// transaction, due the last instant of the day LoanPeriodDays out.
func (s *libraryService) CheckoutBook(userID int, isbn int64) (*CheckoutResult, error) {
	var result CheckoutResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.GetByID(tx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		book, err := s.bookRepo.GetByISBN(tx, isbn)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		flipped, err := s.bookRepo.MarkUnavailable(tx, isbn)
		if err != nil {
			return err
		}
		if !flipped {
			log.Printf("[WARN] CheckoutBook: book %d not available for user %d", isbn, userID)
			return ErrBookNotAvailable
		}

		now := time.Now().UTC()
		checkout := models.Checkout{
			UserID:       userID,
			ISBN:         isbn,
			CheckoutDate: now,
			DueDate:      dueDateFor(now),
		}
		if err := s.checkoutRepo.Create(tx, &checkout); err != nil {
			log.Printf("[ERROR] CheckoutBook: failed to create checkout record: %v", err)
			return err
		}

		result = CheckoutResult{
			Checkout:  checkout,
			BookTitle: book.Title,
			UserName:  user.Name,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] CheckoutBook: checkout %d created for user %d / book %d, due %s",
		result.Checkout.CheckoutID, userID, isbn, result.Checkout.DueDate.Format("2006-01-02"))
	return &result, nil
}

// ─── Return ───────────────────────────────────────────────────────────────────

// ReturnBook implements the transactional return flow.
//
// Steps (all in one transaction):
//  1. Locate the unique open checkout for the (book, user) pair.
//  2. Stamp the return time, guarded against a concurrent double-return.
//  3. Flip the book back to available.
//  4. If the return is past due, accrue the late fee onto the user's
//     fine balance.
func (s *libraryService) ReturnBook(isbn int64, userID int) (*ReturnResult, error) {
	var result ReturnResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		checkout, err := s.checkoutRepo.FindOpen(tx, isbn, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoActiveCheckout
			}
			return err
		}

		now := time.Now().UTC()
		closed, err := s.checkoutRepo.MarkReturned(tx, checkout.CheckoutID, now)
		if err != nil {
			return err
		}
		if !closed {
			// A concurrent request closed it between the lookup and the update.
			return ErrNoActiveCheckout
		}

		if err := s.bookRepo.MarkAvailable(tx, isbn); err != nil {
			log.Printf("[ERROR] ReturnBook: failed to mark book %d available: %v", isbn, err)
			return err
		}

		fee, late := lateFee(checkout.DueDate, now)
		if late {
			if err := s.userRepo.AddFine(tx, userID, fee); err != nil {
				log.Printf("[ERROR] ReturnBook: failed to add fine for user %d: %v", userID, err)
				return err
			}
			log.Printf("[INFO] ReturnBook: late return of book %d by user %d, fee=%s", isbn, userID, fee)
		}

		checkout.ReturnDate = &now
		result = ReturnResult{
			Checkout:   *checkout,
			LateFee:    fee,
			FeeCharged: late,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] ReturnBook: checkout %d closed for user %d / book %d",
		result.Checkout.CheckoutID, userID, isbn)
	return &result, nil
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

// ensureEmailFree fails with ErrEmailTaken when another user (id != selfID)
// already owns the email.
func (s *libraryService) ensureEmailFree(tx *gorm.DB, email string, selfID int) error {
	existing, err := s.userRepo.GetByEmail(tx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if existing.UserID != selfID {
		return ErrEmailTaken
	}
	return nil
}

// ensureISBNFree fails with ErrISBNTaken when the ISBN is already catalogued.
func (s *libraryService) ensureISBNFree(tx *gorm.DB, isbn int64) error {
	_, err := s.bookRepo.GetByISBN(tx, isbn)
	if err == nil {
		return ErrISBNTaken
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// createUserWithRetry inserts the user, assigning max+1 when autoID is set.
// If a concurrent registration claims the same identifier first — possible
// because MAX()+1 is not atomic — the identifier is recalculated and the
// insert retried once.
func (s *libraryService) createUserWithRetry(tx *gorm.DB, user *models.User, autoID bool) error {
	if autoID {
		next, err := s.userRepo.NextID(tx)
		if err != nil {
			return err
		}
		user.UserID = next
	}

	if err := s.userRepo.Create(tx, user); err != nil {
		if autoID && isUniqueViolation(err) {
			log.Printf("[WARN] createUserWithRetry: id %d collided, retrying", user.UserID)
			next, err := s.userRepo.NextID(tx)
			if err != nil {
				return err
			}
			user.UserID = next
			return s.userRepo.Create(tx, user)
		}
		return err
	}
	return nil
}

// isUniqueViolation checks whether a unique-constraint error occurred.
// PostgreSQL reports these as SQLSTATE 23505; gorm drivers with error
// translation surface gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "23505")
}

// ─── Loan Dates & Fines ───────────────────────────────────────────────────────

// today returns the current date at midnight UTC, for the member_since column.
func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// dueDateFor normalizes the checkout time to the last instant of its day
// (23:59:59) and advances it by the loan period, giving borrowers the full
// final day before a return counts as late.
func dueDateFor(checkoutAt time.Time) time.Time {
	endOfDay := time.Date(
		checkoutAt.Year(), checkoutAt.Month(), checkoutAt.Day(),
		23, 59, 59, 0, checkoutAt.Location(),
	)
	return endOfDay.AddDate(0, 0, LoanPeriodDays)
}

// lateFee computes the accrued fine for a return.
//
// Rules:
//   - A return is late iff returnedAt is strictly after dueDate.
//   - Days late are whole elapsed 24h periods of the overdue duration,
//     truncated — not calendar-day boundaries. A return 2 hours past due is
//     late with a 0.00 fee.
//   - Fee = daysLate * FinePerDay, added to the user's balance; nothing
//     ever subtracts from it.
func lateFee(dueDate, returnedAt time.Time) (decimal.Decimal, bool) {
	if !returnedAt.After(dueDate) {
		return decimal.Zero, false
	}
	daysLate := int64(returnedAt.Sub(dueDate) / (24 * time.Hour))
	return FinePerDay.Mul(decimal.NewFromInt(daysLate)), true
}
