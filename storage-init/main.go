// Command storage-init creates the decision journal table and the decision
// outbox queue. It is safe to run on every deploy.
package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const queueAlreadyExists = "QueueAlreadyExists"

func main() {
	_ = godotenv.Load()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}
	table := os.Getenv("DECISIONS_TABLE")
	queue := os.Getenv("DECISIONS_QUEUE")
	if table == "" && queue == "" {
		log.Fatal("nothing to create: set DECISIONS_TABLE and/or DECISIONS_QUEUE")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if table != "" {
		if err := createTable(ctx, connStr, table); err != nil {
			log.WithField("table", table).Fatalf("create table: %v", err)
		}
	}
	if queue != "" {
		if err := createQueue(ctx, connStr, queue); err != nil {
			log.WithField("queue", queue).Fatalf("create queue: %v", err)
		}
	}
	log.Info("storage init complete")
}

func createTable(ctx context.Context, connStr, name string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	_, err = svc.NewClient(name).CreateTable(ctx, nil)
	if alreadyExists(err, string(aztables.TableAlreadyExists)) {
		log.WithField("table", name).Debug("table already exists")
		return nil
	}
	if err == nil {
		log.WithField("table", name).Info("table created")
	}
	return err
}

func createQueue(ctx context.Context, connStr, name string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return err
	}
	_, err = q.Create(ctx, nil)
	if alreadyExists(err, queueAlreadyExists) {
		log.WithField("queue", name).Debug("queue already exists")
		return nil
	}
	if err == nil {
		log.WithField("queue", name).Info("queue created")
	}
	return err
}

// alreadyExists reports whether err is a storage response carrying code.
func alreadyExists(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
