package models

import "time"

// Offer is a priced item attached to exactly one cart. Price keeps the
// locale-formatted text it was submitted with (e.g. "12,50 zł").
type Offer struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;size:200;not null"`
	Price     string    `gorm:"column:price;size:20;not null"`
	Image     *string   `gorm:"column:image;size:200"`
	Link      string    `gorm:"column:link;size:200;not null"`
	CartID    int64     `gorm:"column:cart_id;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Offer) TableName() string { return "offers" }
