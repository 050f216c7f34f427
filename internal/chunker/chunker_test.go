package chunker

import (
	"strings"
	"testing"

	"chatrag/internal/schema"
)

func testMessage(chatID, messageID, createdAt, role, text string) *schema.NormalizedMessage {
	return &schema.NormalizedMessage{
		ChatID:    chatID,
		ChatTitle: "Chat " + chatID,
		MessageID: messageID,
		Role:      role,
		CreatedAt: createdAt,
		Text:      text,
		Topic:     "python",
	}
}

func chunkMessageIDs(chunks []schema.ChunkRecord) [][]string {
	ids := make([][]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.MessageIDs
	}
	return ids
}

func TestBuild_SingleChunkUnderBudget(t *testing.T) {
	messages := []*schema.NormalizedMessage{
		testMessage("c1", "m1", "2024-05-01T08:00:00Z", schema.RoleUser, "how do I vacuum postgres?"),
		testMessage("c1", "m2", "2024-05-01T08:01:00Z", schema.RoleAssistant, "run VACUUM ANALYZE on the table"),
	}
	messages[1].HasCode = true

	builder := NewBuilder(NewHeuristicTokenCounter(), 1000, 1)
	chunks := builder.Build(messages)

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	chunk := chunks[0]
	if chunk.ChunkID == "" {
		t.Error("ChunkID is empty")
	}
	if chunk.ChatID != "c1" || chunk.ChatTitle != "Chat c1" {
		t.Errorf("chat fields = %q, %q", chunk.ChatID, chunk.ChatTitle)
	}
	if len(chunk.MessageIDs) != 2 || chunk.MessageIDs[0] != "m1" || chunk.MessageIDs[1] != "m2" {
		t.Errorf("MessageIDs = %v", chunk.MessageIDs)
	}
	if chunk.StartAt != "2024-05-01T08:00:00Z" || chunk.EndAt != "2024-05-01T08:01:00Z" {
		t.Errorf("time range = %q..%q", chunk.StartAt, chunk.EndAt)
	}
	if chunk.Topic != "python" {
		t.Errorf("Topic = %q", chunk.Topic)
	}
	if !strings.Contains(chunk.Text, "[user | 2024-05-01T08:00:00Z | m1]\nhow do I vacuum postgres?") {
		t.Errorf("Text missing rendered first line: %q", chunk.Text)
	}
	if !strings.Contains(chunk.Text, "\n\n") {
		t.Errorf("Text lines not blank-line separated: %q", chunk.Text)
	}
	if chunk.Metadata.MessageCount != 2 {
		t.Errorf("MessageCount = %d", chunk.Metadata.MessageCount)
	}
	if !chunk.Metadata.HasCode {
		t.Error("HasCode = false, want true")
	}
	if chunk.Metadata.RolesCount[schema.RoleUser] != 1 || chunk.Metadata.RolesCount[schema.RoleAssistant] != 1 {
		t.Errorf("RolesCount = %v", chunk.Metadata.RolesCount)
	}
	if chunk.Metadata.Title != "Chat c1" {
		t.Errorf("Metadata.Title = %q", chunk.Metadata.Title)
	}
}

func TestBuild_SplitWithOverlap(t *testing.T) {
	counter := NewHeuristicTokenCounter()
	m1 := testMessage("c1", "m1", "2024-05-01T08:00:00Z", schema.RoleUser, "first message body text")
	m2 := testMessage("c1", "m2", "2024-05-01T08:01:00Z", schema.RoleAssistant, "second message body text")
	m3 := testMessage("c1", "m3", "2024-05-01T08:02:00Z", schema.RoleUser, "third message body text")

	t1 := counter.Count(renderLine(m1))
	t2 := counter.Count(renderLine(m2))
	t3 := counter.Count(renderLine(m3))
	// Budget fits the first two lines but not the third; the overlap must
	// still fit next to the third.
	budget := t1 + t2
	if t3 > budget || t2+t3 > budget {
		t.Fatalf("fixture sizes broke the scenario: t1=%d t2=%d t3=%d", t1, t2, t3)
	}

	builder := NewBuilder(counter, budget, 1)
	chunks := builder.Build([]*schema.NormalizedMessage{m1, m2, m3})

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %v", len(chunks), chunkMessageIDs(chunks))
	}
	if got := chunks[0].MessageIDs; len(got) != 2 || got[0] != "m1" || got[1] != "m2" {
		t.Errorf("chunk 0 MessageIDs = %v, want [m1 m2]", got)
	}
	// The second chunk re-seeds the last message of the first.
	if got := chunks[1].MessageIDs; len(got) != 2 || got[0] != "m2" || got[1] != "m3" {
		t.Errorf("chunk 1 MessageIDs = %v, want [m2 m3]", got)
	}
	if chunks[1].StartAt != "2024-05-01T08:01:00Z" || chunks[1].EndAt != "2024-05-01T08:02:00Z" {
		t.Errorf("chunk 1 range = %q..%q", chunks[1].StartAt, chunks[1].EndAt)
	}
}

func TestBuild_SplitWithoutOverlap(t *testing.T) {
	counter := NewHeuristicTokenCounter()
	m1 := testMessage("c1", "m1", "2024-05-01T08:00:00Z", schema.RoleUser, "first message body text")
	m2 := testMessage("c1", "m2", "2024-05-01T08:01:00Z", schema.RoleAssistant, "second message body text")
	m3 := testMessage("c1", "m3", "2024-05-01T08:02:00Z", schema.RoleUser, "third message body text")
	budget := counter.Count(renderLine(m1)) + counter.Count(renderLine(m2))

	builder := NewBuilder(counter, budget, 0)
	chunks := builder.Build([]*schema.NormalizedMessage{m1, m2, m3})

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %v", len(chunks), chunkMessageIDs(chunks))
	}
	if got := chunks[1].MessageIDs; len(got) != 1 || got[0] != "m3" {
		t.Errorf("chunk 1 MessageIDs = %v, want [m3]", got)
	}
}

func TestBuild_BudgetInvariant(t *testing.T) {
	counter := NewHeuristicTokenCounter()
	var messages []*schema.NormalizedMessage
	for i := 0; i < 20; i++ {
		messages = append(messages, testMessage(
			"c1",
			"m"+string(rune('a'+i)),
			"2024-05-01T08:00:00Z",
			schema.RoleUser,
			strings.Repeat("word ", i+1),
		))
	}

	const budget = 40
	builder := NewBuilder(counter, budget, 2)
	chunks := builder.Build(messages)

	for _, chunk := range chunks {
		if len(chunk.MessageIDs) == 1 {
			// A single oversized message may exceed the budget alone.
			continue
		}
		total := 0
		for _, line := range strings.Split(chunk.Text, "\n\n") {
			total += counter.Count(line)
		}
		if total > budget {
			t.Errorf("chunk %v holds %d tokens, budget %d", chunk.MessageIDs, total, budget)
		}
	}
}

func TestBuild_OversizedMessageStandsAlone(t *testing.T) {
	counter := NewHeuristicTokenCounter()
	m1 := testMessage("c1", "m1", "2024-05-01T08:00:00Z", schema.RoleUser, "short question")
	m2 := testMessage("c1", "m2", "2024-05-01T08:01:00Z", schema.RoleAssistant, strings.Repeat("very long answer ", 100))
	m3 := testMessage("c1", "m3", "2024-05-01T08:02:00Z", schema.RoleUser, "short follow up")

	budget := counter.Count(renderLine(m1)) + counter.Count(renderLine(m3))
	if counter.Count(renderLine(m2)) <= budget {
		t.Fatal("fixture message m2 is not oversized")
	}

	builder := NewBuilder(counter, budget, 1)
	chunks := builder.Build([]*schema.NormalizedMessage{m1, m2, m3})

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3: %v", len(chunks), chunkMessageIDs(chunks))
	}
	if got := chunks[1].MessageIDs; len(got) != 1 || got[0] != "m2" {
		t.Errorf("oversized chunk MessageIDs = %v, want [m2]", got)
	}
	// The chunk after an oversized one starts fresh, with no overlap seed.
	if got := chunks[2].MessageIDs; len(got) != 1 || got[0] != "m3" {
		t.Errorf("trailing chunk MessageIDs = %v, want [m3]", got)
	}
}

func TestBuild_CodeBlockSurvivesSplit(t *testing.T) {
	counter := NewHeuristicTokenCounter()
	block := "```sql\nSELECT date_trunc('month', created_at) AS month, count(*)\nFROM users GROUP BY 1;\n```"

	m1 := testMessage("c1", "m1", "2024-05-01T08:00:00Z", schema.RoleUser, "Please provide a SQL sample for counting users by month.")
	m2 := testMessage("c1", "m2", "2024-05-01T08:01:00Z", schema.RoleAssistant, block)
	m2.HasCode = true
	m3 := testMessage("c1", "m3", "2024-05-01T08:02:00Z", schema.RoleUser, "Use an index on user id.")

	t1 := counter.Count(renderLine(m1))
	t2 := counter.Count(renderLine(m2))
	t3 := counter.Count(renderLine(m3))
	// Budget holds the question and its answer; the follow-up forces a
	// split and the overlap must still fit next to it.
	budget := t1 + t2
	if t3 > t1 {
		t.Fatalf("fixture sizes broke the scenario: t1=%d t2=%d t3=%d", t1, t2, t3)
	}

	builder := NewBuilder(counter, budget, 1)
	chunks := builder.Build([]*schema.NormalizedMessage{m1, m2, m3})

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %v", len(chunks), chunkMessageIDs(chunks))
	}
	if got := chunks[0].MessageIDs; len(got) != 2 || got[0] != "m1" || got[1] != "m2" {
		t.Errorf("chunk 0 MessageIDs = %v, want [m1 m2]", got)
	}
	// The answer is carried into the follow-up's chunk by the overlap.
	if got := chunks[1].MessageIDs; len(got) != 2 || got[0] != "m2" || got[1] != "m3" {
		t.Errorf("chunk 1 MessageIDs = %v, want [m2 m3]", got)
	}

	// The fenced block is never torn apart by a chunk boundary.
	for i, chunk := range chunks {
		hasM2 := false
		for _, id := range chunk.MessageIDs {
			if id == "m2" {
				hasM2 = true
			}
		}
		if hasM2 != strings.Contains(chunk.Text, block) {
			t.Errorf("chunk %d: block presence does not match m2 membership: %q", i, chunk.Text)
		}
		if hasM2 && !chunk.Metadata.HasCode {
			t.Errorf("chunk %d holds the block but HasCode = false", i)
		}
	}
}

func TestBuild_NeverSpansChats(t *testing.T) {
	messages := []*schema.NormalizedMessage{
		testMessage("c1", "m1", "2024-05-01T08:00:00Z", schema.RoleUser, "alpha"),
		testMessage("c2", "m2", "2024-05-01T08:00:30Z", schema.RoleUser, "beta"),
		testMessage("c1", "m3", "2024-05-01T08:01:00Z", schema.RoleAssistant, "gamma"),
	}

	builder := NewBuilder(NewHeuristicTokenCounter(), 1000, 1)
	chunks := builder.Build(messages)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].ChatID != "c1" || chunks[1].ChatID != "c2" {
		t.Errorf("chat ids = %q, %q", chunks[0].ChatID, chunks[1].ChatID)
	}
	if got := chunks[0].MessageIDs; len(got) != 2 || got[0] != "m1" || got[1] != "m3" {
		t.Errorf("c1 MessageIDs = %v", got)
	}
}

func TestBuild_TimestamplessMessagesSortLast(t *testing.T) {
	messages := []*schema.NormalizedMessage{
		testMessage("c1", "m-late", "", schema.RoleUser, "no timestamp"),
		testMessage("c1", "m-b", "2024-05-01T09:00:00Z", schema.RoleAssistant, "second"),
		testMessage("c1", "m-a", "2024-05-01T08:00:00Z", schema.RoleUser, "first"),
	}

	builder := NewBuilder(NewHeuristicTokenCounter(), 1000, 1)
	chunks := builder.Build(messages)

	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	want := []string{"m-a", "m-b", "m-late"}
	got := chunks[0].MessageIDs
	if len(got) != len(want) {
		t.Fatalf("MessageIDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("MessageIDs[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if !strings.Contains(chunks[0].Text, "unknown_time") {
		t.Errorf("Text missing unknown_time placeholder: %q", chunks[0].Text)
	}
}

func TestBuild_Idempotent(t *testing.T) {
	messages := []*schema.NormalizedMessage{
		testMessage("c1", "m1", "2024-05-01T08:00:00Z", schema.RoleUser, strings.Repeat("question ", 10)),
		testMessage("c1", "m2", "2024-05-01T08:01:00Z", schema.RoleAssistant, strings.Repeat("answer ", 10)),
		testMessage("c1", "m3", "2024-05-01T08:02:00Z", schema.RoleUser, strings.Repeat("follow ", 10)),
	}

	builder := NewBuilder(NewHeuristicTokenCounter(), 30, 1)
	first := builder.Build(messages)
	second := builder.Build(messages)

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		// Chunk ids are freshly minted each run; everything else must match.
		if first[i].Text != second[i].Text {
			t.Errorf("chunk %d text differs", i)
		}
		if strings.Join(first[i].MessageIDs, ",") != strings.Join(second[i].MessageIDs, ",") {
			t.Errorf("chunk %d message ids differ: %v vs %v", i, first[i].MessageIDs, second[i].MessageIDs)
		}
		if first[i].ChunkID == second[i].ChunkID {
			t.Errorf("chunk %d reused the same id across runs", i)
		}
	}
}

func TestRenderLine(t *testing.T) {
	withStamp := testMessage("c1", "m1", "2024-05-01T08:00:00Z", schema.RoleUser, "body")
	if got := renderLine(withStamp); got != "[user | 2024-05-01T08:00:00Z | m1]\nbody" {
		t.Errorf("renderLine() = %q", got)
	}

	withoutStamp := testMessage("c1", "m2", "", schema.RoleAssistant, "body")
	if got := renderLine(withoutStamp); got != "[assistant | unknown_time | m2]\nbody" {
		t.Errorf("renderLine() = %q", got)
	}
}

func TestChooseTopic(t *testing.T) {
	messages := []*schema.NormalizedMessage{
		{Topic: ""},
		{Topic: "devops"},
		{Topic: "python"},
	}
	if got := chooseTopic(messages); got != "devops" {
		t.Errorf("chooseTopic() = %q, want devops", got)
	}
	if got := chooseTopic([]*schema.NormalizedMessage{{}, {}}); got != "unknown" {
		t.Errorf("chooseTopic() = %q, want unknown", got)
	}
}
