package models

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/utils"
)

type User struct {
	ID           int       `gorm:"primary_key" json:"id"`
	Username     string    `gorm:"size:100;uniqueIndex;not null" json:"username" binding:"required"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Name         string    `gorm:"size:255" json:"name"`
	Role         string    `gorm:"size:50;default:'staff'" json:"role"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

func (input NewUser) validate(ctx context.Context) error {
	if err := utils.ValidateUnique[User](ctx, "username", input.Username, 0); err != nil {
		return fmt.Errorf("%w: username already taken", utils.ErrConflict)
	}
	return nil
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		config.LogError(logger, "user", "CreateUser", "hashing password", input.Username, err)
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = "staff"
	}

	user := User{
		Username:     input.Username,
		PasswordHash: string(hashed),
		Name:         input.Name,
		Role:         role,
		IsActive:     utils.NewTrue(),
	}

	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}

	return &user, nil
}

// Login checks credentials and returns a signed JWT.
func Login(ctx context.Context, username string, password string) (string, *User, error) {
	db := config.GetDB()

	var user User
	err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid username or password", utils.ErrValidation)
	}
	if user.IsActive != nil && !*user.IsActive {
		return "", nil, fmt.Errorf("%w: user is deactivated", utils.ErrValidation)
	}
	if err := utils.ComparePassword(user.PasswordHash, password); err != nil {
		return "", nil, fmt.Errorf("%w: invalid username or password", utils.ErrValidation)
	}

	token, err := utils.JwtGenerate(user.ID, user.Username, user.Role)
	if err != nil {
		return "", nil, err
	}

	return token, &user, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {
	return utils.FetchModel[User](ctx, id)
}
