package models

// Category is a hierarchical topic label.
type Category struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	Name     string `gorm:"size:128;not null"`
	Slug     string `gorm:"size:128;uniqueIndex;not null"`
	ParentID *uint  `gorm:"index"`

	Parent *Category `gorm:"foreignKey:ParentID"`
}

// Tag is a free-form lower-cased label.
type Tag struct {
	ID   uint   `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"size:128;uniqueIndex;not null"`
}
