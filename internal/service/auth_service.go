package service

import (
	"edutest_backend/internal/config"
	"edutest_backend/internal/model"
	"edutest_backend/internal/util"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type LoginRequest struct {
	Role     model.UserRole `json:"role" binding:"required"`
	Name     string         `json:"name"`
	Password string         `json:"password"`
}

type LoginResult struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// AuthService is a placeholder gate: instructors share one password, students
// only give a name.
type AuthService struct {
	Cfg *config.Config

	// OnStudentLogin runs after a student token is issued.
	OnStudentLogin func(student model.User)
}

func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{Cfg: cfg}
}

func (s *AuthService) Login(req LoginRequest) (*LoginResult, error) {
	if !req.Role.Valid() {
		return nil, util.NewValidationError("role", "unknown role %q", req.Role)
	}

	user := &model.User{
		ID:   model.GenerateUUID(),
		Name: strings.TrimSpace(req.Name),
		Role: req.Role,
	}

	switch req.Role {
	case model.Teacher:
		if req.Password == "" {
			return nil, util.NewValidationError("password", "password is required")
		}
		hash := s.Cfg.Auth.TeacherPasswordHash
		if hash == "" {
			return nil, util.ErrInvalidCredentials
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
			return nil, util.ErrInvalidCredentials
		}
		if user.Name == "" {
			user.Name = s.Cfg.Auth.DefaultTeacherName
		}
	case model.Student:
		if user.Name == "" {
			user.Name = s.Cfg.Auth.DefaultStudentName
		}
		user.ClassCode = s.Cfg.Auth.StudentClassCode
	}

	token, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, err
	}
	if user.Role == model.Student && s.OnStudentLogin != nil {
		s.OnStudentLogin(*user)
	}
	return &LoginResult{Token: token, User: *user}, nil
}

func (s *AuthService) GetCurrentUser(c *gin.Context) *model.User {
	claims := util.GetUserFromContext(c)
	if claims == nil {
		return nil
	}
	return &model.User{
		ID:        claims.UserID,
		Name:      claims.Name,
		Role:      claims.Role,
		ClassCode: claims.ClassCode,
	}
}

// HashPassword produces the value stored in auth.teacher_password_hash.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
