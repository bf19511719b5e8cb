package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sharath018/school-management-backend/internal/auditlog"
	"github.com/sharath018/school-management-backend/internal/auth"
	"github.com/sharath018/school-management-backend/middleware"
	"github.com/sharath018/school-management-backend/utils"
)

// ErrNotAllowed is returned when a caller other than a platform admin acting
// as themselves tries to impersonate.
var ErrNotAllowed = errors.New("only platform admins can impersonate a school")

// Issuer signs school-admin tokens on behalf of a platform admin.
type Issuer interface {
	IssueImpersonation(ctx context.Context, adminID, schoolID uint) (*auth.Grant, error)
}

type Service struct {
	Store     Store
	Issuer    Issuer
	Audit     auditlog.Service
	Publisher utils.Publisher
}

func NewService(store Store, issuer Issuer, auditSvc auditlog.Service, pub utils.Publisher) *Service {
	return &Service{Store: store, Issuer: issuer, Audit: auditSvc, Publisher: pub}
}

// owner is the user whose stack a request works on. Impersonated requests
// belong to the admin behind them.
func owner(ac middleware.AccessContext) uint {
	if ac.ImpersonatorID != nil {
		return *ac.ImpersonatorID
	}
	return ac.UserID
}

// Impersonate pushes a school-admin credential on top of the caller's own.
func (s *Service) Impersonate(ctx context.Context, ac middleware.AccessContext, own Credential, schoolID uint, ip string) (*Stack, error) {
	details := map[string]interface{}{"school_id": schoolID}
	if ac.RoleName != middleware.RolePlatformAdmin || ac.IsImpersonated() {
		s.audit(ctx, ac, schoolID, "SCHOOL_IMPERSONATION_FAILED", details, ip, auditlog.StatusFailure, ErrNotAllowed)
		return nil, ErrNotAllowed
	}

	grant, err := s.Issuer.IssueImpersonation(ctx, ac.UserID, schoolID)
	if err != nil {
		s.audit(ctx, ac, schoolID, "SCHOOL_IMPERSONATION_FAILED", details, ip, auditlog.StatusFailure, err)
		return nil, err
	}

	stack, err := s.Store.Load(ctx, ac.UserID)
	if err != nil {
		return nil, err
	}
	// A stale stack from an earlier session is replaced by the admin's own
	// current credential.
	if !stack.Impersonating() {
		stack.Reset()
		stack.Push(own)
	}
	sid := schoolID
	stack.Push(Credential{
		AccessToken:    grant.AccessToken,
		UserID:         grant.User.ID,
		Role:           grant.User.Role.RoleName,
		SchoolID:       &sid,
		ImpersonatorID: &grant.ImpersonatorID,
		IssuedAt:       time.Now(),
	})
	if err := s.Store.Save(ctx, ac.UserID, stack); err != nil {
		return nil, err
	}

	details["target_user_id"] = grant.User.ID
	s.audit(ctx, ac, schoolID, "SCHOOL_IMPERSONATED", details, ip, auditlog.StatusSuccess, nil)
	utils.PublishAsync(s.Publisher, utils.DomainEvent{
		Type:     utils.EventSchoolImpersonated,
		SchoolID: schoolID,
		ActorID:  ac.UserID,
		Payload:  map[string]interface{}{"target_user_id": grant.User.ID},
	})
	return stack, nil
}

// Exit pops the active credential and returns the stack with the restored
// one active.
func (s *Service) Exit(ctx context.Context, ac middleware.AccessContext, ip string) (*Stack, error) {
	ownerID := owner(ac)
	stack, err := s.Store.Load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var schoolID uint
	if cur, ok := stack.Active(); ok && cur.SchoolID != nil {
		schoolID = *cur.SchoolID
	}

	if _, err := stack.Pop(); err != nil {
		return nil, err
	}
	if !stack.Impersonating() && stack.Depth() == 0 {
		// Back at the admin's own credential; nothing left to restore.
		if err := s.Store.Delete(ctx, ownerID); err != nil {
			return nil, err
		}
	} else if err := s.Store.Save(ctx, ownerID, stack); err != nil {
		return nil, err
	}

	s.audit(ctx, middleware.AccessContext{UserID: ownerID}, schoolID, "SCHOOL_IMPERSONATION_ENDED", map[string]interface{}{"school_id": schoolID}, ip, auditlog.StatusSuccess, nil)
	return stack, nil
}

// State returns the caller's stack.
func (s *Service) State(ctx context.Context, ac middleware.AccessContext) (*Stack, error) {
	return s.Store.Load(ctx, owner(ac))
}

func (s *Service) audit(ctx context.Context, ac middleware.AccessContext, schoolID uint, action string, details map[string]interface{}, ip, status string, cause error) {
	if s.Audit == nil {
		return
	}
	if cause != nil {
		details["error"] = cause.Error()
	}
	var sid *uint
	if schoolID != 0 {
		sid = &schoolID
	}
	if err := s.Audit.LogAction(ctx, &ac.UserID, sid, action, details, ip, status); err != nil {
		log.Printf("⚠️ audit %s: %v", action, err)
	}
}
