package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fluxpay/engine/internal/saga"
)

// SagaInstanceModel is the GORM persistence model for a saga run.
type SagaInstanceModel struct {
	SagaID        string     `gorm:"column:saga_id;type:varchar(64);primaryKey"`
	SagaType      string     `gorm:"column:saga_type;type:varchar(100);not null"`
	TenantID      string     `gorm:"column:tenant_id;type:varchar(64);not null"`
	CorrelationID string     `gorm:"column:correlation_id;type:varchar(255);not null;uniqueIndex:idx_saga_tenant_corr"`
	Status        string     `gorm:"column:status;type:varchar(20);not null;index:idx_saga_status"`
	CurrentStep   int        `gorm:"column:current_step;not null;default:0"`
	ContextBlob   []byte     `gorm:"column:context_blob;type:json"`
	Error         *string    `gorm:"column:error;type:text"`
	ClaimedAt     *time.Time `gorm:"column:claimed_at;type:timestamptz"`
	ClaimLease    *time.Time `gorm:"column:claim_lease;type:timestamptz;index:idx_saga_lease"`
	CreatedAt     time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (SagaInstanceModel) TableName() string { return "saga_instances" }

// SagaStepModel is the GORM persistence model for one saga step row.
type SagaStepModel struct {
	SagaID    string    `gorm:"column:saga_id;type:varchar(64);primaryKey"`
	StepOrder int       `gorm:"column:step_order;primaryKey"`
	StepName  string    `gorm:"column:step_name;type:varchar(100);not null"`
	Status    string    `gorm:"column:status;type:varchar(20);not null;default:'PENDING'"`
	StepData  []byte    `gorm:"column:step_data;type:json"`
	Error     *string   `gorm:"column:error;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (SagaStepModel) TableName() string { return "saga_steps" }

// SagaRepository is the GORM-based implementation of saga.Repository.
type SagaRepository struct {
	db *gorm.DB
}

func NewSagaRepository(db *gorm.DB) *SagaRepository {
	return &SagaRepository{db: db}
}

func (r *SagaRepository) FindByCorrelation(ctx context.Context, tenantID, correlationID string) (*saga.Instance, error) {
	var model SagaInstanceModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND correlation_id = ?", tenantID, correlationID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	instance, err := sagaInstanceToDomain(&model)
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func (r *SagaRepository) Create(ctx context.Context, instance *saga.Instance, steps []saga.StepRecord) error {
	instanceModel, err := sagaInstanceToModel(instance)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(instanceModel).Error; err != nil {
			return err
		}
		for _, step := range steps {
			stepModel, err := sagaStepToModel(&step)
			if err != nil {
				return err
			}
			if err := tx.Create(stepModel).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ClaimNext claims one instance whose claim_lease has expired (or was
// never set), atomically extending its lease by leaseDuration, so that
// concurrent background workers never both pick up the same run.
func (r *SagaRepository) ClaimNext(ctx context.Context, now time.Time, leaseDuration time.Duration) (*saga.Instance, error) {
	var claimed *SagaInstanceModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model SagaInstanceModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status IN ? AND (claim_lease IS NULL OR claim_lease < ?)",
				[]string{string(saga.InstanceStarted), string(saga.InstanceProcessing)}, now).
			Order("created_at ASC").
			Limit(1).
			Find(&model).Error
		if err != nil {
			return err
		}
		if model.SagaID == "" {
			return nil
		}

		newLease := now.Add(leaseDuration)
		if err := tx.Model(&SagaInstanceModel{}).
			Where("saga_id = ?", model.SagaID).
			Updates(map[string]interface{}{
				"claimed_at":  now,
				"claim_lease": newLease,
			}).Error; err != nil {
			return err
		}

		model.ClaimedAt = &now
		model.ClaimLease = &newLease
		claimed = &model
		return nil
	})
	if err != nil {
		return nil, err
	}
	if claimed == nil {
		return nil, nil
	}
	return sagaInstanceToDomain(claimed)
}

func (r *SagaRepository) Get(ctx context.Context, sagaID string) (*saga.Instance, []saga.StepRecord, error) {
	var instanceModel SagaInstanceModel
	if err := r.db.WithContext(ctx).Where("saga_id = ?", sagaID).First(&instanceModel).Error; err != nil {
		return nil, nil, err
	}
	instance, err := sagaInstanceToDomain(&instanceModel)
	if err != nil {
		return nil, nil, err
	}

	var stepModels []SagaStepModel
	if err := r.db.WithContext(ctx).
		Where("saga_id = ?", sagaID).
		Order("step_order ASC").
		Find(&stepModels).Error; err != nil {
		return nil, nil, err
	}

	steps := make([]saga.StepRecord, len(stepModels))
	for i := range stepModels {
		step, err := sagaStepToDomain(&stepModels[i])
		if err != nil {
			return nil, nil, err
		}
		steps[i] = *step
	}
	return instance, steps, nil
}

func (r *SagaRepository) UpdateInstance(ctx context.Context, instance *saga.Instance) error {
	model, err := sagaInstanceToModel(instance)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(model).Error
}

func (r *SagaRepository) UpdateStep(ctx context.Context, step *saga.StepRecord) error {
	model, err := sagaStepToModel(step)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(model).Error
}

func sagaInstanceToDomain(m *SagaInstanceModel) (*saga.Instance, error) {
	var contextBlob map[string]interface{}
	if len(m.ContextBlob) > 0 {
		if err := json.Unmarshal(m.ContextBlob, &contextBlob); err != nil {
			return nil, err
		}
	}
	return &saga.Instance{
		SagaID:        m.SagaID,
		SagaType:      m.SagaType,
		TenantID:      m.TenantID,
		CorrelationID: m.CorrelationID,
		Status:        saga.InstanceStatus(m.Status),
		CurrentStep:   m.CurrentStep,
		ContextBlob:   contextBlob,
		Error:         m.Error,
		ClaimedAt:     m.ClaimedAt,
		ClaimLease:    m.ClaimLease,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}

func sagaInstanceToModel(i *saga.Instance) (*SagaInstanceModel, error) {
	var contextBlob []byte
	if i.ContextBlob != nil {
		var err error
		contextBlob, err = json.Marshal(i.ContextBlob)
		if err != nil {
			return nil, err
		}
	}
	return &SagaInstanceModel{
		SagaID:        i.SagaID,
		SagaType:      i.SagaType,
		TenantID:      i.TenantID,
		CorrelationID: i.CorrelationID,
		Status:        string(i.Status),
		CurrentStep:   i.CurrentStep,
		ContextBlob:   contextBlob,
		Error:         i.Error,
		ClaimedAt:     i.ClaimedAt,
		ClaimLease:    i.ClaimLease,
		CreatedAt:     i.CreatedAt,
		UpdatedAt:     i.UpdatedAt,
	}, nil
}

func sagaStepToDomain(m *SagaStepModel) (*saga.StepRecord, error) {
	var stepData map[string]interface{}
	if len(m.StepData) > 0 {
		if err := json.Unmarshal(m.StepData, &stepData); err != nil {
			return nil, err
		}
	}
	return &saga.StepRecord{
		SagaID:    m.SagaID,
		StepOrder: m.StepOrder,
		StepName:  m.StepName,
		Status:    saga.StepStatus(m.Status),
		StepData:  stepData,
		Error:     m.Error,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func sagaStepToModel(s *saga.StepRecord) (*SagaStepModel, error) {
	var stepData []byte
	if s.StepData != nil {
		var err error
		stepData, err = json.Marshal(s.StepData)
		if err != nil {
			return nil, err
		}
	}
	return &SagaStepModel{
		SagaID:    s.SagaID,
		StepOrder: s.StepOrder,
		StepName:  s.StepName,
		Status:    string(s.Status),
		StepData:  stepData,
		Error:     s.Error,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}, nil
}
