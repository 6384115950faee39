package settlement

import (
	"context"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lebrqksd-bot/lebrqapp-sub005/config"
	"github.com/lebrqksd-bot/lebrqapp-sub005/models"
)

// InconsistencyStore keeps post-authorization inconsistency records: the
// gateway moved money, the backend did not confirm settlement. These rows
// are the recovery payload for a verify-only retry and must survive process
// restarts. Unique per order id.
type InconsistencyStore struct {
	getDB  func() *gorm.DB
	logger *logrus.Logger
}

// NewInconsistencyStore takes a DB provider rather than a handle because
// the database connects in the background after the server is listening.
func NewInconsistencyStore(getDB func() *gorm.DB, logger *logrus.Logger) *InconsistencyStore {
	return &InconsistencyStore{getDB: getDB, logger: logger}
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// Record inserts an OPEN record, or refreshes last_error on the existing row
// for the same order id. A retried verify failure therefore never produces
// a second row.
func (s *InconsistencyStore) Record(ctx context.Context, inc models.PaymentInconsistency) error {
	db := s.getDB()
	if db == nil {
		// Losing an inconsistency record risks an unreconciled payment, so
		// this is loud even though the in-memory negotiator state still
		// holds the retry payload for this process.
		config.LogError(s.logger, "inconsistencyStore.go", "Record", "no database",
			inc.OrderId, errors.New("inconsistency not durably recorded"))
		return nil
	}

	inc.Status = models.InconsistencyStatusOpen
	err := db.WithContext(ctx).Create(&inc).Error
	if err == nil {
		return nil
	}
	if !isDuplicateKeyErr(err) {
		config.LogError(s.logger, "inconsistencyStore.go", "Record", "Create", inc.OrderId, err)
		return err
	}

	return db.WithContext(ctx).Model(&models.PaymentInconsistency{}).
		Where("order_id = ?", inc.OrderId).
		Updates(map[string]interface{}{"last_error": inc.LastError, "status": models.InconsistencyStatusOpen}).Error
}

func (s *InconsistencyStore) Resolve(ctx context.Context, orderId string) error {
	db := s.getDB()
	if db == nil {
		return nil
	}
	now := time.Now()
	return db.WithContext(ctx).Model(&models.PaymentInconsistency{}).
		Where("order_id = ?", orderId).
		Updates(map[string]interface{}{"status": models.InconsistencyStatusResolved, "resolved_at": &now}).Error
}

func (s *InconsistencyStore) GetByOrderId(ctx context.Context, orderId string) (*models.PaymentInconsistency, error) {
	db := s.getDB()
	if db == nil {
		return nil, errors.New("inconsistency store has no database")
	}
	var inc models.PaymentInconsistency
	if err := db.WithContext(ctx).Where("order_id = ?", orderId).First(&inc).Error; err != nil {
		return nil, err
	}
	return &inc, nil
}

func (s *InconsistencyStore) ListOpen(ctx context.Context) ([]models.PaymentInconsistency, error) {
	db := s.getDB()
	if db == nil {
		return nil, nil
	}
	var incs []models.PaymentInconsistency
	err := db.WithContext(ctx).
		Where("status = ?", models.InconsistencyStatusOpen).
		Order("created_at ASC").
		Find(&incs).Error
	return incs, err
}

func (s *InconsistencyStore) OpenForPayee(ctx context.Context, kind models.PayeeKind, payeeId int) ([]models.PaymentInconsistency, error) {
	db := s.getDB()
	if db == nil {
		return nil, nil
	}
	var incs []models.PaymentInconsistency
	err := db.WithContext(ctx).
		Where("status = ? AND payee_kind = ? AND payee_id = ?", models.InconsistencyStatusOpen, kind, payeeId).
		Order("created_at ASC").
		Find(&incs).Error
	return incs, err
}
