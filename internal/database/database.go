package database

import (
	"richpres/internal/database/migrations"
	"richpres/internal/model"
	"richpres/internal/presence"
)

// Database is the persistent store behind a presence session: the request
// journal and the contact list.
type Database interface {
	presence.Journal
	presence.Contacts

	// ListRequests returns up to limit journaled requests, newest first.
	ListRequests(limit int) ([]*model.Request, error)
	// UpsertContact inserts or replaces a contact.
	UpsertContact(c *model.Contact) error
	DeleteContact(uri string) error

	Path() string
	CheckMigrations() error
	SchemaStatus() (migrations.Status, error)
	Migrate() error
	BackupTo(destPath string) error
	Close() error
}
