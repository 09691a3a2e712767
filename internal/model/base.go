package model

import (
	"time"
)

// BaseModel 主键由 snowflake 生成，写入前必须赋值
type BaseModel struct {
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
}

// DateLayout 日历日期的文本格式
const DateLayout = "2006-01-02"
