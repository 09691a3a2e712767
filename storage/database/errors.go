package database

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsUniqueViolation 唯一约束冲突。TranslateError 覆盖 postgres，
// 其余驱动退回到按错误文本判断
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

// IsNotFound 记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
