package services

import (
	"errors"
	"time"

	"github.com/AdairStone/rchat/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct {
	db        *gorm.DB
	jwtSecret []byte
}

func NewAuthService(db *gorm.DB, jwtSecret string) *AuthService {
	return &AuthService{db: db, jwtSecret: []byte(jwtSecret)}
}

func (s *AuthService) Register(username, password, displayName string) (string, error) {
	var existing models.Operator
	if err := s.db.Where("username = ?", username).First(&existing).Error; err == nil {
		return "", errors.New("username already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	if displayName == "" {
		displayName = username
	}
	operator := models.Operator{
		Username:     username,
		PasswordHash: string(hash),
		DisplayName:  displayName,
	}
	if err := s.db.Create(&operator).Error; err != nil {
		return "", err
	}

	return s.GenerateToken(operator.ID)
}

func (s *AuthService) Login(username, password string) (string, error) {
	var operator models.Operator
	if err := s.db.Where("username = ?", username).First(&operator).Error; err != nil {
		return "", errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(operator.PasswordHash), []byte(password)); err != nil {
		return "", errors.New("invalid credentials")
	}

	return s.GenerateToken(operator.ID)
}

func (s *AuthService) GenerateToken(operatorID uint) (string, error) {
	claims := jwt.MapClaims{
		"operator_id": operatorID,
		"exp":         time.Now().Add(24 * time.Hour).Unix(),
		"iat":         time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) ValidateToken(tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("invalid claims")
	}

	idFloat, ok := claims["operator_id"].(float64)
	if !ok {
		return 0, errors.New("invalid operator_id in token")
	}

	return uint(idFloat), nil
}

// ResolveOperator validates the bearer token and loads the operator record.
func (s *AuthService) ResolveOperator(tokenString string) (*models.Operator, error) {
	operatorID, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	var operator models.Operator
	if err := s.db.First(&operator, operatorID).Error; err != nil {
		return nil, errors.New("operator not found")
	}
	return &operator, nil
}
