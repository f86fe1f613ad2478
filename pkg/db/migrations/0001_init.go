package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type Run struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Action      string            `gorm:"type:text;not null"`
	Application string            `gorm:"type:text;not null;index"`
	Region      string            `gorm:"type:text;not null"`
	Pattern     string            `gorm:"type:text;not null"`
	Actor       string            `gorm:"type:text"`
	CommandID   string            `gorm:"type:text"`
	Targets     int               `gorm:"not null;default:0"`
	Succeeded   int               `gorm:"not null;default:0"`
	Failed      int               `gorm:"not null;default:0"`
	Pending     int               `gorm:"not null;default:0"`
	Rounds      int               `gorm:"not null;default:0"`
	Details     datatypes.JSONMap `gorm:"type:jsonb"`
	StartedAt   time.Time         `gorm:"type:timestamptz;not null;index"`
	FinishedAt  time.Time         `gorm:"type:timestamptz;not null"`
}

func (Run) TableName() string { return "snowwhite_runs" }

type RunInstance struct {
	RunID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	InstanceID   string    `gorm:"type:text;primaryKey"`
	Environment  string    `gorm:"type:text;not null"`
	Outcome      string    `gorm:"type:text;not null"`
	ResponseCode *int      `gorm:"type:integer"`
	Run          Run       `gorm:"foreignKey:RunID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (RunInstance) TableName() string { return "snowwhite_run_instances" }

func openGorm(tx *sql.Tx) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openGorm(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).AutoMigrate(
		&Run{},
		&RunInstance{},
	)
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openGorm(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&RunInstance{},
		&Run{},
	)
}
