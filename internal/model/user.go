package model

// User ORM 示例查询的用户表
type User struct {
	BaseModel
	Username string `gorm:"type:varchar(150);uniqueIndex;not null" json:"username"`
	Email    string `gorm:"type:varchar(254)" json:"email"`
	IsActive bool   `gorm:"not null;index:idx_users_active" json:"is_active"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// AllModels 迁移顺序：被引用的表在前
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Author{},
		&Category{},
		&Book{},
		&Review{},
	}
}
