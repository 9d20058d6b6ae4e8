package firebase

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"firebase.google.com/go/db"
	"firebase.google.com/go/messaging"
)

//Clients Firebase clients used by the push backend. Each is nil when not requested.
type Clients struct {
	Firestore *firestore.Client
	Database  *db.Client
	Messaging *messaging.Client
}

//Options Which clients to create.
type Options struct {
	ProjectID   string
	DatabaseURL string
	Firestore   bool
	Messaging   bool
}

//NewClients Initializes Firebase app and requested clients.
func NewClients(ctx context.Context, opts Options) (*Clients, error) {
	conf := &firebase.Config{
		ProjectID:   opts.ProjectID,
		DatabaseURL: opts.DatabaseURL,
	}

	app, err := firebase.NewApp(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %v", err)
	}

	var clients Clients

	if opts.Firestore {
		if clients.Firestore, err = app.Firestore(ctx); err != nil {
			return nil, fmt.Errorf("app.Firestore: %v", err)
		}
	}
	if opts.DatabaseURL != "" {
		if clients.Database, err = app.Database(ctx); err != nil {
			return nil, fmt.Errorf("app.Database: %v", err)
		}
	}
	if opts.Messaging {
		if clients.Messaging, err = app.Messaging(ctx); err != nil {
			return nil, fmt.Errorf("app.Messaging: %v", err)
		}
	}

	return &clients, nil
}

//Close Closes clients holding connections.
func (c *Clients) Close() error {
	if c.Firestore != nil {
		return c.Firestore.Close()
	}
	return nil
}
