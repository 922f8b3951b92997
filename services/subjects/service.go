package subjects

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arkhazla/authcore/services/logging"
)

var (
	ErrSubjectNotFound = errors.New("subject not found")
)

// Directory resolves subjects by email. Like the token store it runs on the
// caller's *gorm.DB so lookups share the session transaction.
type Directory struct {
	logger *logging.Service
}

func NewDirectory(logger *logging.Service) *Directory {
	return &Directory{
		logger: logger,
	}
}

func (d *Directory) FindByEmail(tx *gorm.DB, email string) (*Subject, error) {
	var subject Subject
	err := tx.Where("email = ?", email).First(&subject).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if d.logger != nil {
				d.logger.Warn("subject lookup failed - not found",
					zap.String("email", email))
			}
			return nil, ErrSubjectNotFound
		}
		if d.logger != nil {
			d.logger.Error("subject lookup failed - database error", zap.Error(err))
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &subject, nil
}

// Provision inserts a subject, generating an id when none is supplied. Used by
// seed tooling and tests; the login path never creates subjects.
func (d *Directory) Provision(tx *gorm.DB, subject *Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.New().String()
	}

	if err := tx.Create(subject).Error; err != nil {
		if d.logger != nil {
			d.logger.Error("failed to provision subject", zap.Error(err))
		}
		return fmt.Errorf("failed to provision subject: %w", err)
	}

	if d.logger != nil {
		d.logger.Info("subject provisioned",
			zap.String("subject_id", subject.ID),
			zap.String("email", subject.Email))
	}

	return nil
}
