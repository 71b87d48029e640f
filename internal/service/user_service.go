package service

import (
	"context"

	"murmur/internal/models"
	"murmur/internal/repository"
)

type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// Exists reports whether the user behind a token is still present.
func (s *UserService) Exists(ctx context.Context, id uint) (bool, error) {
	return s.userRepo.Exists(ctx, id)
}
