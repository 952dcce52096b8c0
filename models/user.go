package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/hrm_backend/config"
	"bitbucket.org/mmdatafocus/hrm_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a console login (HR staff / admin), not an employee. Employees
// interact only through devices; the console is where corrections, leave
// approvals and reports live.
type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     *string   `gorm:"size:100;unique" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"password"`
	IsActive  *bool     `gorm:"not null" json:"is_active"`
	Role      UserRole  `gorm:"type:enum('A','S');default:'S'" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type LoginInfo struct {
	Token    string `json:"token"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Timezone string `json:"timezone"`
}

func (result *User) PrepareGive() {
	result.Password = ""
}

/*
caches:
	User:$username
	Token:$token -> username
*/

// Login verifies credentials and issues a redis-backed session token.
func Login(ctx context.Context, username string, password string, timezone string) (*LoginInfo, error) {
	var user User
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&User{}).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("invalid username or password")
		}
		return nil, err
	}
	if user.IsActive == nil || !*user.IsActive {
		return nil, errors.New("invalid username or password")
	}
	if err := utils.ComparePassword(user.Password, password); err != nil {
		return nil, errors.New("invalid username or password")
	}

	token := uuid.NewString()
	if err := config.SetRedisValue("Token:"+token, user.Username, 24*time.Hour); err != nil {
		return nil, err
	}
	user.PrepareGive()
	_ = config.SetRedisObject("User:"+user.Username, &user, 24*time.Hour)

	role := "Staff"
	if user.Role == UserRoleAdmin {
		role = "Admin"
	}
	return &LoginInfo{
		Token:    token,
		Name:     user.Name,
		Role:     role,
		Timezone: timezone,
	}, nil
}

// GetUserByUsername checks the redis cache before the DB.
func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if !exists {
		db := config.GetDB()
		if err := db.WithContext(ctx).Model(&User{}).Where("username = ?", username).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, utils.ErrorRecordNotFound
			}
			return nil, err
		}
	}
	return &user, nil
}
