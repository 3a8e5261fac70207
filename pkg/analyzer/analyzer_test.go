package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/flowscope/pkg/flow"
	"github.com/pthm/flowscope/pkg/source"
)

const sendNotification = `<?xml version="1.0" encoding="UTF-8"?>
<Flow xmlns="http://soap.sforce.com/2006/04/metadata">
    <recordCreates>
        <name>Create_Task</name>
        <object>Task</object>
    </recordCreates>
</Flow>
`

const errorLogger = `{"recordCreates": {"name": "Insert_Log", "object": "Log__c"}}`

func testdataSource(t *testing.T) *source.Memory {
	t.Helper()
	content, err := os.ReadFile(filepath.Join("..", "parser", "testdata", "Contact_Sync.flow-meta.xml"))
	require.NoError(t, err)

	mem := source.NewMemory()
	mem.Put("Contact_Sync", source.FormatXML, content)
	mem.Put("Send_Notification", source.FormatXML, []byte(sendNotification))
	mem.Put("Error_Logger", source.FormatJSON, []byte(errorLogger))
	return mem
}

func TestAnalyzeContactSync(t *testing.T) {
	a, stats, err := New(testdataSource(t), Options{}).AnalyzeWithStats(context.Background(), "Contact_Sync")
	require.NoError(t, err)

	assert.Equal(t, "Contact_Sync", a.Name)
	assert.Equal(t, 0, a.Depth)
	assert.Equal(t, 6, a.ElementCount)
	assert.Equal(t, 1, a.DirectDMLCount)
	// Lookup, triggering record and one cross-object formula.
	assert.Equal(t, 3, a.DirectSOQLCount)
	assert.Equal(t, 1, a.CrossObjectFormulaCount)

	assert.True(t, a.LoopContexts.InLoop("Has_Email"))
	assert.True(t, a.LoopContexts.InLoop("Update_Contact"))
	assert.True(t, a.LoopContexts.InLoop("Log_Error"), "fault handler of an iterated update")
	assert.False(t, a.LoopContexts.InLoop("Get_Contacts"))

	require.Len(t, a.ChildSubflows, 2)
	assert.Equal(t, a.DirectDMLCount+2, a.CumulativeDMLCount)
	assert.True(t, a.ShouldBulkify)
	assert.Less(t, a.BulkificationScore, 80)

	require.NotEmpty(t, a.Recommendations)
	assert.Equal(t, "Contact_Sync", a.Recommendations[0].Flow)
	assert.Equal(t, 2, stats.Computations)
}

func TestAnalyzeFreshStorePerRun(t *testing.T) {
	mem := testdataSource(t)
	an := New(mem, Options{})

	_, err := an.Analyze(context.Background(), "Contact_Sync")
	require.NoError(t, err)
	_, err = an.Analyze(context.Background(), "Contact_Sync")
	require.NoError(t, err)

	assert.Equal(t, 2, mem.Calls("Send_Notification"))
}

func TestAnalyzeRaw(t *testing.T) {
	mem := testdataSource(t)
	raw := source.RawMetadata{
		Name:    "Uploaded",
		Format:  source.FormatJSON,
		Content: []byte(`{"subflows": {"name": "Call", "flowName": "Error_Logger"}}`),
	}

	a, err := New(mem, Options{}).AnalyzeRaw(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "Uploaded", a.Name)
	require.Len(t, a.ChildSubflows, 1)
	assert.Equal(t, "Error_Logger", a.ChildSubflows[0].Name)
	require.Len(t, a.Recommendations, 1)
	assert.Equal(t, []string{"ErrorLoggerDataManager"}, a.Recommendations[0].SuggestedClassNames)
}

func TestAnalyzeErrors(t *testing.T) {
	_, err := Analyze(context.Background(), source.NewMemory(), "Missing")
	require.Error(t, err)
	assert.True(t, flow.IsNotFoundErr(err))

	_, err = New(source.NewMemory(), Options{}).AnalyzeRaw(context.Background(), source.RawMetadata{
		Name: "Bad", Format: source.FormatJSON, Content: []byte(`"nope"`),
	})
	require.Error(t, err)
	assert.True(t, flow.IsMalformedInputErr(err))
}
