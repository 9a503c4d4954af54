package database

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"

	"gorm.io/gorm"
)

//go:embed schema/*/up.sql
var schemaFS embed.FS

var schemaVersionRegex = regexp.MustCompile(`^(\d+)_`)

type SchemaVersion uint64

type SchemaMigration struct {
	Version SchemaVersion `gorm:"primaryKey"`
}

func CurrentSchemaVersion(db *gorm.DB) (SchemaVersion, error) {
	var schemaMigration SchemaMigration

	err := db.
		Model(&SchemaMigration{}).
		Select("version").
		Order("version desc").
		Limit(1).
		Scan(&schemaMigration).Error

	return schemaMigration.Version, err
}

// SchemaStep is one embedded schema directory. Every statement in it is
// create-if-absent, so applying a step against an existing store is a no-op.
type SchemaStep struct {
	Version SchemaVersion
	Dir     string
}

func (step SchemaStep) SQL() (string, error) {
	upSQL, err := fs.ReadFile(schemaFS, path.Join("schema", step.Dir, "up.sql"))
	if err != nil {
		return "", fmt.Errorf("failed to read up.sql for schema step %s: %w", step.Dir, err)
	}

	return string(upSQL), nil
}

func (step SchemaStep) Apply(db *gorm.DB) error {
	sql, err := step.SQL()
	if err != nil {
		return err
	}

	return db.Exec(sql).Error
}

// EnsureSchema creates the reading and statistics tables if they are missing.
func EnsureSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	currentVersion, err := CurrentSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	steps, err := SchemaStepsNewerThan(currentVersion)
	if err != nil {
		return err
	}

	for _, step := range steps {
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&SchemaMigration{Version: step.Version}).Error; err != nil {
				return err
			}

			return step.Apply(tx)
		})
		if err != nil {
			return fmt.Errorf("failed to apply schema step %d: %w", step.Version, err)
		}
	}

	return nil
}

func SchemaStepsNewerThan(minVersion SchemaVersion) ([]SchemaStep, error) {
	entries, err := fs.ReadDir(schemaFS, "schema")
	if err != nil {
		return nil, err
	}

	var steps []SchemaStep
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		match := schemaVersionRegex.FindStringSubmatch(entry.Name())
		if len(match) != 2 {
			return nil, fmt.Errorf("invalid schema directory name: %s", entry.Name())
		}

		versionInt, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version: %s - %w", match[1], err)
		}

		version := SchemaVersion(versionInt)
		if version <= minVersion {
			continue
		}

		steps = append(steps, SchemaStep{Version: version, Dir: entry.Name()})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })

	return steps, nil
}
