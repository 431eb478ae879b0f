package mongodb

import (
	"context"
	"os"
	"testing"

	tcmongodb "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/zoobzio/sluice"
	"github.com/zoobzio/sluice/testing/integration/document"
)

var tc *document.TestContext

func TestMain(m *testing.M) {
	ctx := context.Background()

	mongoContainer, err := tcmongodb.Run(ctx, "mongo:7")
	if err != nil {
		panic("failed to start mongodb container: " + err.Error())
	}

	connStr, err := mongoContainer.ConnectionString(ctx)
	if err != nil {
		panic("failed to get connection string: " + err.Error())
	}

	session := sluice.NewSession()
	if err := session.Connect(ctx, connStr, "sluice_test"); err != nil {
		panic("failed to connect session: " + err.Error())
	}

	tc = &document.TestContext{
		Session: session,
		Cleanup: func() {
			_ = session.Disconnect(ctx)
			_ = mongoContainer.Terminate(ctx)
		},
	}

	code := m.Run()

	tc.Cleanup()

	os.Exit(code)
}

func TestMongoDB_Query(t *testing.T) {
	document.RunQueryTests(t, tc)
}

func TestMongoDB_Pipeline(t *testing.T) {
	document.RunPipelineTests(t, tc)
}

func TestMongoDB_Collection(t *testing.T) {
	document.RunCollectionTests(t, tc)
}

func TestMongoDB_Writes(t *testing.T) {
	document.RunWriteTests(t, tc)
}
