package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/repo"
)

type AffiliateService struct {
	Repo *repo.GormRepo
}

// Apply files a pending application. A user may hold at most one
// application that is not rejected.
func (s *AffiliateService) Apply(ctx context.Context, p auth.Principal) (*models.AffiliateApplication, error) {
	l := logging.FromContext(ctx).With("svc", "affiliate.apply", "user_id", p.UserID)

	if !p.Authenticated() {
		return nil, ErrUnauthenticated
	}

	_, err := s.Repo.ActiveApplication(ctx, p.UserID)
	switch {
	case err == nil:
		l.Warn("apply_error", "status", 409, "reason", "already applied")
		return nil, fmt.Errorf("affiliate application: %w", ErrConflict)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	app := models.AffiliateApplication{UserID: p.UserID, Status: models.ApplicationPending}
	if err := s.Repo.CreateApplication(ctx, &app); err != nil {
		return nil, duplicate(err, "affiliate application")
	}
	l.Info("apply_success", "application_id", app.ID)
	return &app, nil
}

func (s *AffiliateService) Mine(ctx context.Context, p auth.Principal) (*models.AffiliateApplication, error) {
	if !p.Authenticated() {
		return nil, ErrUnauthenticated
	}
	app, err := s.Repo.LatestApplication(ctx, p.UserID)
	if err != nil {
		return nil, notFound(err, "affiliate application")
	}
	return app, nil
}

func requireReviewer(p auth.Principal) error {
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	if !p.Can(auth.CapReviewAffiliates) {
		return ErrForbidden
	}
	return nil
}

func (s *AffiliateService) List(ctx context.Context, p auth.Principal, status models.ApplicationStatus) ([]models.AffiliateApplication, error) {
	if err := requireReviewer(p); err != nil {
		return nil, err
	}
	return s.Repo.ListApplications(ctx, status)
}

// Review decides a pending application. Approval grants the affiliate role
// in the same transaction.
func (s *AffiliateService) Review(ctx context.Context, p auth.Principal, id uuid.UUID, decision models.ApplicationStatus, reason *string) (*models.AffiliateApplication, error) {
	l := logging.FromContext(ctx).With("svc", "affiliate.review", "application_id", id)

	if err := requireReviewer(p); err != nil {
		return nil, err
	}
	if decision != models.ApplicationApproved && decision != models.ApplicationRejected {
		return nil, fmt.Errorf("%w: decision must be approved or rejected", ErrValidation)
	}
	if reason != nil {
		r := strings.TrimSpace(*reason)
		reason = &r
	}

	var out *models.AffiliateApplication
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		app, err := tx.GetApplication(ctx, id)
		if err != nil {
			return notFound(err, "affiliate application")
		}
		if app.Status != models.ApplicationPending {
			return fmt.Errorf("%w: application already %s", ErrInvalidTransition, app.Status)
		}
		ok, err := tx.ReviewApplication(ctx, id, decision, reason)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: application changed concurrently", ErrInvalidTransition)
		}
		if decision == models.ApplicationApproved {
			if err := tx.GrantRole(ctx, app.UserID, auth.RoleAffiliate); err != nil {
				return err
			}
		}
		out, err = tx.GetApplication(ctx, id)
		return err
	})
	if err != nil {
		l.Warn("review_error", "error", err)
		return nil, err
	}
	l.Info("review_success", "decision", decision)
	return out, nil
}

// Link builds the referral link of an approved affiliate.
func (s *AffiliateService) Link(p auth.Principal, baseURL string) (string, error) {
	if !p.Authenticated() {
		return "", ErrUnauthenticated
	}
	if !p.Can(auth.CapAffiliate) {
		return "", ErrForbidden
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: bad base url", ErrValidation)
	}
	q := u.Query()
	q.Set("ref", p.UserID.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}
