package model

import (
	"time"
)

// Author 作者
type Author struct {
	BaseModel
	Name        string    `gorm:"type:varchar(100);not null" json:"name"`
	Email       string    `gorm:"type:varchar(254);uniqueIndex;not null" json:"email"`
	BirthDate   time.Time `json:"birth_date"`
	Nationality string    `gorm:"type:varchar(50)" json:"nationality"`
	IsActive    bool      `gorm:"not null" json:"is_active"`

	Books []Book `gorm:"foreignKey:AuthorID" json:"books,omitempty"`
}

func (Author) TableName() string { return "authors" }

// Category 分类，与 Book 多对多
type Category struct {
	BaseModel
	Name        string `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	IsActive    bool   `gorm:"not null" json:"is_active"`
}

func (Category) TableName() string { return "categories" }

// Book 图书
type Book struct {
	BaseModel
	Title         string    `gorm:"type:varchar(200);not null" json:"title"`
	ISBN          string    `gorm:"type:varchar(13);uniqueIndex;not null" json:"isbn"`
	PublishedDate time.Time `json:"published_date"`
	Price         float64   `gorm:"type:decimal(10,2);not null;default:0" json:"price"`
	InStock       bool      `gorm:"not null" json:"in_stock"`

	AuthorID   int64      `gorm:"index;not null" json:"author_id"`
	Author     *Author    `gorm:"constraint:OnDelete:CASCADE" json:"author,omitempty"`
	Categories []Category `gorm:"many2many:book_categories" json:"categories,omitempty"`
	Reviews    []Review   `gorm:"constraint:OnDelete:CASCADE" json:"reviews,omitempty"`
}

func (Book) TableName() string { return "books" }

// Review 书评，评分 1..5
type Review struct {
	BaseModel
	BookID       int64  `gorm:"index;not null" json:"book_id"`
	ReviewerName string `gorm:"type:varchar(100);not null" json:"reviewer_name"`
	Rating       int    `gorm:"not null;check:rating >= 1 AND rating <= 5" json:"rating"`
	Comment      string `gorm:"type:text" json:"comment"`
}

func (Review) TableName() string { return "reviews" }

// ValidRating 评分是否在 1..5
func ValidRating(r int) bool {
	return r >= 1 && r <= 5
}
