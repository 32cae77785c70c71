package ledger

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultDatabase = "(default)"

// FirestoreConfig selects the project, database and collection holding
// invite documents.
type FirestoreConfig struct {
	ProjectID       string
	Database        string
	Collection      string
	CredentialsPath string
}

// Firestore is a Ledger backed by one document per button.
type Firestore struct {
	client     *firestore.Client
	collection string
}

// OpenFirestore connects to Firestore. The default database is reached
// through the Firebase app; named databases use a direct client.
func OpenFirestore(ctx context.Context, cfg FirestoreConfig) (*Firestore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	var (
		client *firestore.Client
		err    error
	)
	if cfg.Database == "" || cfg.Database == defaultDatabase {
		app, appErr := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
		if appErr != nil {
			return nil, fmt.Errorf("init firebase app: %w", appErr)
		}
		client, err = app.Firestore(ctx)
	} else {
		client, err = firestore.NewClientWithDatabase(ctx, cfg.ProjectID, cfg.Database, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("open firestore: %w", err)
	}
	return NewFirestore(client, cfg.Collection), nil
}

// NewFirestore wraps an existing client.
func NewFirestore(client *firestore.Client, collection string) *Firestore {
	if collection == "" {
		collection = "emergency_invites"
	}
	return &Firestore{client: client, collection: collection}
}

func (f *Firestore) Last(ctx context.Context, buttonID string) (*Invite, error) {
	snap, err := f.doc(buttonID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invite for %s: %w", buttonID, err)
	}
	inv := &Invite{}
	if err := snap.DataTo(inv); err != nil {
		return nil, fmt.Errorf("decode invite for %s: %w", buttonID, err)
	}
	return inv, nil
}

func (f *Firestore) Put(ctx context.Context, inv Invite) error {
	if _, err := f.doc(inv.ButtonID).Set(ctx, inv); err != nil {
		return fmt.Errorf("put invite for %s: %w", inv.ButtonID, err)
	}
	return nil
}

// Close releases the Firestore client.
func (f *Firestore) Close() error {
	return f.client.Close()
}

// doc maps a button id onto a document; ids may not contain slashes.
func (f *Firestore) doc(buttonID string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(strings.ReplaceAll(buttonID, "/", "_"))
}
