package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"libraryapi/internal/models"
	"libraryapi/internal/services"
)

type LibraryHandler struct {
	svc services.LibraryService
}

func RegisterRoutes(r *gin.Engine, svc services.LibraryService) {
	h := &LibraryHandler{svc: svc}

	r.GET("/", h.root)

	// User endpoints
	r.GET("/users", h.listUsers)
	r.GET("/users/:id", h.getUser)
	r.POST("/users", h.createUser)
	r.PUT("/users/:id", h.updateUser)
	r.PATCH("/users/:id", h.patchUser)
	r.DELETE("/users/:id", h.deleteUser)

	// Book endpoints
	r.GET("/books", h.listBooks)
	r.GET("/books/:isbn", h.getBook)
	r.POST("/books", h.createBook)
	r.PUT("/books/:isbn", h.updateBook)
	r.PATCH("/books/:isbn", h.patchBook)
	r.DELETE("/books/:isbn", h.deleteBook)

	// Circulation endpoints
	r.POST("/checkout", h.checkoutBook)
	r.POST("/return/:isbn", h.returnBook)
}

// respondError maps domain sentinel errors onto HTTP status codes: lookup
// misses are 404, violated preconditions and uniqueness conflicts are 400,
// anything else is an opaque 500.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrBookNotFound),
		errors.Is(err, services.ErrNoActiveCheckout):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrEmailTaken),
		errors.Is(err, services.ErrISBNTaken),
		errors.Is(err, services.ErrBookNotAvailable),
		errors.Is(err, services.ErrUserHasCheckouts),
		errors.Is(err, services.ErrBookCheckedOut):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *LibraryHandler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome to the Library REST API.",
	})
}

// ─── Users ────────────────────────────────────────────────────────────────────

type userRequest struct {
	Name        string  `json:"name" binding:"required"`
	Email       string  `json:"email" binding:"required,email"`
	Address     *string `json:"address"`
	PhoneNumber *string `json:"phoneNumber"`
}

type userPatchRequest struct {
	Name        *string `json:"name"`
	Email       *string `json:"email" binding:"omitempty,email"`
	Address     *string `json:"address"`
	PhoneNumber *string `json:"phoneNumber"`
}

type userResponse struct {
	UserID          int     `json:"userId"`
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	MemberSince     string  `json:"memberSince"`
	CheckedOutBooks []int64 `json:"checkedOutBooks"`
	FineBalance     float64 `json:"fineBalance"`
	Address         *string `json:"address"`
	PhoneNumber     *string `json:"phoneNumber"`
}

type userSummary struct {
	UserID int    `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

func newUserResponse(user *models.User, checkedOut []int64) userResponse {
	if checkedOut == nil {
		checkedOut = []int64{}
	}
	return userResponse{
		UserID:          user.UserID,
		Name:            user.Name,
		Email:           user.Email,
		MemberSince:     user.MemberSince.Format("2006-01-02"),
		CheckedOutBooks: checkedOut,
		FineBalance:     user.FineBalance.InexactFloat64(),
		Address:         user.Address,
		PhoneNumber:     user.PhoneNumber,
	}
}

func (h *LibraryHandler) getUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	user, checkedOut, err := h.svc.GetUser(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user, checkedOut))
}

func (h *LibraryHandler) listUsers(c *gin.Context) {
	users, err := h.svc.ListUsers()
	if err != nil {
		respondError(c, err)
		return
	}
	summaries := make([]userSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, userSummary{UserID: u.UserID, Name: u.Name, Email: u.Email})
	}
	c.JSON(http.StatusOK, summaries)
}

func (h *LibraryHandler) createUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.svc.RegisterUser(services.UserInput{
		Name:        req.Name,
		Email:       req.Email,
		Address:     req.Address,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": fmt.Sprintf("User created with ID %d", user.UserID),
		"userId":  user.UserID,
	})
}

func (h *LibraryHandler) updateUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.svc.UpdateUser(id, services.UserInput{
		Name:        req.Name,
		Email:       req.Email,
		Address:     req.Address,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("User %d updated successfully", id)})
}

func (h *LibraryHandler) patchUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	var req userPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.svc.PatchUser(id, services.UserPatch{
		Name:        req.Name,
		Email:       req.Email,
		Address:     req.Address,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("User %d updated successfully", id)})
}

func (h *LibraryHandler) deleteUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteUser(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("User %d deleted successfully", id)})
}

// ─── Books ────────────────────────────────────────────────────────────────────

type bookRequest struct {
	ISBN      int64   `json:"isbn" binding:"required"`
	Title     string  `json:"title" binding:"required"`
	Author    string  `json:"author" binding:"required"`
	Publisher *string `json:"publisher"`
	Year      *int    `json:"year"`
	Pages     *int    `json:"pages"`
	Genre     *string `json:"genre"`
	Location  *string `json:"location"`
}

type bookPatchRequest struct {
	Title     *string `json:"title"`
	Author    *string `json:"author"`
	Publisher *string `json:"publisher"`
	Year      *int    `json:"year"`
	Pages     *int    `json:"pages"`
	Genre     *string `json:"genre"`
	Location  *string `json:"location"`
}

type bookResponse struct {
	ISBN      int64   `json:"isbn"`
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	Publisher *string `json:"publisher"`
	Year      *int    `json:"year"`
	Pages     *int    `json:"pages"`
	Genre     *string `json:"genre"`
	Location  *string `json:"location"`
}

type bookSummary struct {
	ISBN      int64  `json:"isbn"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Available bool   `json:"available"`
}

func (h *LibraryHandler) getBook(c *gin.Context) {
	isbn, ok := isbnParam(c)
	if !ok {
		return
	}
	book, err := h.svc.GetBook(isbn)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookResponse{
		ISBN:      book.ISBN,
		Title:     book.Title,
		Author:    book.Author,
		Publisher: book.Publisher,
		Year:      book.Year,
		Pages:     book.Pages,
		Genre:     book.Genre,
		Location:  book.Location,
	})
}

func (h *LibraryHandler) listBooks(c *gin.Context) {
	books, err := h.svc.ListBooks()
	if err != nil {
		respondError(c, err)
		return
	}
	summaries := make([]bookSummary, 0, len(books))
	for _, b := range books {
		summaries = append(summaries, bookSummary{
			ISBN:      b.ISBN,
			Title:     b.Title,
			Author:    b.Author,
			Available: b.IsAvailable,
		})
	}
	c.JSON(http.StatusOK, summaries)
}

func (h *LibraryHandler) createBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	book, err := h.svc.AddBook(services.BookInput{
		ISBN:      req.ISBN,
		Title:     req.Title,
		Author:    req.Author,
		Publisher: req.Publisher,
		Year:      req.Year,
		Pages:     req.Pages,
		Genre:     req.Genre,
		Location:  req.Location,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": fmt.Sprintf("Book '%s' added to library", book.Title),
		"isbn":    book.ISBN,
	})
}

func (h *LibraryHandler) updateBook(c *gin.Context) {
	isbn, ok := isbnParam(c)
	if !ok {
		return
	}
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.svc.UpdateBook(isbn, services.BookInput{
		ISBN:      req.ISBN,
		Title:     req.Title,
		Author:    req.Author,
		Publisher: req.Publisher,
		Year:      req.Year,
		Pages:     req.Pages,
		Genre:     req.Genre,
		Location:  req.Location,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Book '%s' updated successfully", req.Title)})
}

func (h *LibraryHandler) patchBook(c *gin.Context) {
	isbn, ok := isbnParam(c)
	if !ok {
		return
	}
	var req bookPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.svc.PatchBook(isbn, services.BookPatch{
		Title:     req.Title,
		Author:    req.Author,
		Publisher: req.Publisher,
		Year:      req.Year,
		Pages:     req.Pages,
		Genre:     req.Genre,
		Location:  req.Location,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Book %d updated successfully", isbn)})
}

func (h *LibraryHandler) deleteBook(c *gin.Context) {
	isbn, ok := isbnParam(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteBook(isbn); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Book %d deleted successfully", isbn)})
}

// ─── Circulation ──────────────────────────────────────────────────────────────

type checkoutRequest struct {
	UserID int   `json:"userId" binding:"required"`
	ISBN   int64 `json:"isbn" binding:"required"`
}

func (h *LibraryHandler) checkoutBook(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.svc.CheckoutBook(req.UserID, req.ISBN)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Book '%s' checked out to %s", result.BookTitle, result.UserName),
		"dueDate": result.Checkout.DueDate,
	})
}

func (h *LibraryHandler) returnBook(c *gin.Context) {
	isbn, ok := isbnParam(c)
	if !ok {
		return
	}
	userID, err := strconv.Atoi(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or missing user_id"})
		return
	}
	result, err := h.svc.ReturnBook(isbn, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	message := "Book returned successfully"
	if result.FeeCharged {
		message = fmt.Sprintf("Book returned. Late fee of $%s applied.", result.LateFee.StringFixed(2))
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    message,
		"feeCharged": result.FeeCharged,
		"lateFee":    result.LateFee.InexactFloat64(),
	})
}

// ─── Param Parsing ────────────────────────────────────────────────────────────

func userIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return id, true
}

func isbnParam(c *gin.Context) (int64, bool) {
	isbn, err := strconv.ParseInt(c.Param("isbn"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid isbn"})
		return 0, false
	}
	return isbn, true
}
