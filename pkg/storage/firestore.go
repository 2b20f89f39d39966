package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/raterudder/leneda/pkg/log"
	"github.com/raterudder/leneda/pkg/snapshot"
	"github.com/raterudder/leneda/pkg/types"
)

// snapshotVersion is the encoding version of snapshot entry documents.
const snapshotVersion = 1

// FirestoreProvider implements Database using Google Cloud Firestore. Each
// meter group is a document under "groups" with a "config" collection and a
// "snapshot" collection holding one document per key.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// an empty project id is detected from the environment
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) getCollection(groupID, name string) (*firestore.CollectionRef, error) {
	if err := checkGroupID(groupID); err != nil {
		return nil, err
	}
	return f.client.Collection("groups").Doc(groupID).Collection(name), nil
}

// docVersion reads the "version" field, defaulting to 0.
func docVersion(doc *firestore.DocumentSnapshot) int {
	if v, err := doc.DataAt("version"); err == nil {
		if vInt, ok := v.(int64); ok {
			return int(vInt)
		}
	}
	return 0
}

// docJSON decodes the "json" string field into out.
func docJSON(doc *firestore.DocumentSnapshot, out any) error {
	val, err := doc.DataAt("json")
	if err != nil {
		return fmt.Errorf("document missing 'json' field: %w", err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return fmt.Errorf("'json' field is not a string")
	}
	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("failed to unmarshal json: %w", err)
	}
	return nil
}

// GetBillingConfig retrieves the billing config from the "config/billing"
// document. A missing document returns the zero config at version 0 so that
// migration fills in the defaults.
func (f *FirestoreProvider) GetBillingConfig(ctx context.Context, groupID string) (types.BillingConfig, int, error) {
	coll, err := f.getCollection(groupID, "config")
	if err != nil {
		return types.BillingConfig{}, 0, err
	}
	doc, err := coll.Doc("billing").Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.BillingConfig{}, 0, nil
		}
		return types.BillingConfig{}, 0, fmt.Errorf("failed to fetch billing config doc: %w", err)
	}

	var c types.BillingConfig
	if err := docJSON(doc, &c); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "invalid billing config doc", slog.String("groupID", groupID), slog.Any("err", err))
		return types.BillingConfig{}, 0, fmt.Errorf("failed to read billing config: %w", err)
	}
	return c, docVersion(doc), nil
}

// SetBillingConfig saves the billing config to the "config/billing" document
// as a JSON string.
func (f *FirestoreProvider) SetBillingConfig(ctx context.Context, groupID string, cfg types.BillingConfig, version int) error {
	jsonBytes, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal billing config: %w", err)
	}

	coll, err := f.getCollection(groupID, "config")
	if err != nil {
		return err
	}
	_, err = coll.Doc("billing").Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"version": version,
	})
	if err != nil {
		return fmt.Errorf("failed to save billing config: %w", err)
	}
	return nil
}

// SaveSnapshot writes one document per snapshot key with a bulk writer.
func (f *FirestoreProvider) SaveSnapshot(ctx context.Context, groupID string, snap *snapshot.Snapshot) error {
	coll, err := f.getCollection(groupID, "snapshot")
	if err != nil {
		return err
	}

	bw := f.client.BulkWriter(ctx)
	jobs := make(map[string]*firestore.BulkWriterJob, snap.Len())
	for key, entry := range snap.Entries() {
		jsonBytes, err := json.Marshal(entry)
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to marshal snapshot entry %s: %w", key, err)
		}
		job, err := bw.Set(coll.Doc(key), map[string]interface{}{
			"json":    string(jsonBytes),
			"version": snapshotVersion,
			"time":    snap.Time(),
		})
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to queue snapshot entry %s: %w", key, err)
		}
		jobs[key] = job
	}
	bw.End()

	for key, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("failed to save snapshot entry %s: %w", key, err)
		}
	}
	return nil
}

// LoadSnapshot reads every snapshot document of the group. The snapshot time
// is the latest time found on any document.
func (f *FirestoreProvider) LoadSnapshot(ctx context.Context, groupID string) (*snapshot.Snapshot, error) {
	coll, err := f.getCollection(groupID, "snapshot")
	if err != nil {
		return nil, err
	}

	iter := coll.Documents(ctx)
	defer iter.Stop()

	entries := map[string]snapshot.Entry{}
	var at time.Time
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate snapshot: %w", err)
		}
		if v := docVersion(doc); v != snapshotVersion {
			log.Ctx(ctx).WarnContext(ctx, "skipping snapshot entry with unknown version", slog.String("key", doc.Ref.ID), slog.Int("version", v))
			continue
		}
		var e snapshot.Entry
		if err := docJSON(doc, &e); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping invalid snapshot entry", slog.String("key", doc.Ref.ID), slog.Any("err", err))
			continue
		}
		entries[doc.Ref.ID] = e
		if t, err := doc.DataAt("time"); err == nil {
			if tt, ok := t.(time.Time); ok && tt.After(at) {
				at = tt
			}
		}
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return snapshot.New(at.UTC(), entries), nil
}
