package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"memory-keeper/internal/domain"
)

const (
	skMeta       = "META"
	skPrefixTurn = "TURN#"
	gsi1Name     = "GSI1"

	// timeLayout is fixed width so lexical order equals time order.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// ErrNotFound is returned when a record is missing or belongs to another
// user.
var ErrNotFound = errors.New("repository: not found")

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client wraps a single DynamoDB table holding conversations, turns,
// stories, transcripts and blogs.
type Client struct {
	api       dynamodbAPI
	tableName string
	seq       atomic.Uint64
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func convPK(id string) string {
	return "CONV#" + id
}

func storyPK(id string) string {
	return "STORY#" + id
}

func transcriptPK(id string) string {
	return "TRANSCRIPT#" + id
}

func blogPK(id string) string {
	return "BLOG#" + id
}

func userIndexPK(userID, kind string) string {
	return "USER#" + userID + "#" + kind
}

// turnSK orders turns by creation time; seq breaks ties within one
// nanosecond.
func turnSK(ts time.Time, seq uint64) string {
	return fmt.Sprintf("%s%019d#%06d", skPrefixTurn, ts.UTC().UnixNano(), seq%1_000_000)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// CreateConversation inserts a conversation record.
func (c *Client) CreateConversation(ctx context.Context, conv domain.Conversation) error {
	item := map[string]types.AttributeValue{
		"PK":         strVal(convPK(conv.ID)),
		"SK":         strVal(skMeta),
		"GSI1PK":     strVal(userIndexPK(conv.UserID, "CONV")),
		"GSI1SK":     strVal(formatTime(conv.CreatedAt)),
		"id":         strVal(conv.ID),
		"user_id":    strVal(conv.UserID),
		"title":      strVal(conv.Title),
		"created_at": strVal(formatTime(conv.CreatedAt)),
	}
	if err := c.insert(ctx, item); err != nil {
		return fmt.Errorf("repository: CreateConversation: %w", err)
	}
	return nil
}

// GetConversation returns the conversation when it exists and is owned by
// userID.
func (c *Client) GetConversation(ctx context.Context, userID, conversationID string) (domain.Conversation, error) {
	item, err := c.getOwned(ctx, convPK(conversationID), userID)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: GetConversation: %w", err)
	}
	conv, err := itemToConversation(item)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: GetConversation unmarshal: %w", err)
	}
	return conv, nil
}

// ListConversations returns the user's conversations, newest first.
func (c *Client) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	items, err := c.queryUserIndex(ctx, userIndexPK(userID, "CONV"))
	if err != nil {
		return nil, fmt.Errorf("repository: ListConversations query: %w", err)
	}
	out := make([]domain.Conversation, 0, len(items))
	for _, item := range items {
		conv, err := itemToConversation(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListConversations unmarshal: %w", err)
		}
		out = append(out, conv)
	}
	return out, nil
}

// AppendTurn inserts one turn under its conversation.
func (c *Client) AppendTurn(ctx context.Context, conversationID string, t domain.Turn) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("repository: AppendTurn: conversation id is required")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	item := map[string]types.AttributeValue{
		"PK":         strVal(convPK(conversationID)),
		"SK":         strVal(turnSK(t.CreatedAt, c.seq.Add(1))),
		"role":       strVal(string(t.Role)),
		"content":    strVal(t.Content),
		"created_at": strVal(formatTime(t.CreatedAt)),
	}
	if err := c.insert(ctx, item); err != nil {
		return fmt.Errorf("repository: AppendTurn: %w", err)
	}
	return nil
}

// ListTurns returns every turn of a conversation in insertion order.
func (c *Client) ListTurns(ctx context.Context, conversationID string) ([]domain.Turn, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     strVal(convPK(conversationID)),
			":prefix": strVal(skPrefixTurn),
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}
	items, err := c.queryAll(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: ListTurns query: %w", err)
	}
	out := make([]domain.Turn, 0, len(items))
	for _, item := range items {
		t, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListTurns unmarshal: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// CreateStory inserts a story record.
func (c *Client) CreateStory(ctx context.Context, s domain.Story) error {
	item := map[string]types.AttributeValue{
		"PK":         strVal(storyPK(s.ID)),
		"SK":         strVal(skMeta),
		"GSI1PK":     strVal(userIndexPK(s.UserID, "STORY")),
		"GSI1SK":     strVal(formatTime(s.CreatedAt)),
		"id":         strVal(s.ID),
		"user_id":    strVal(s.UserID),
		"title":      strVal(s.Title),
		"content":    strVal(s.Content),
		"created_at": strVal(formatTime(s.CreatedAt)),
	}
	if s.ConversationID != "" {
		item["conversation_id"] = strVal(s.ConversationID)
	}
	if err := c.insert(ctx, item); err != nil {
		return fmt.Errorf("repository: CreateStory: %w", err)
	}
	return nil
}

// GetStory returns the story when it exists and is owned by userID.
func (c *Client) GetStory(ctx context.Context, userID, storyID string) (domain.Story, error) {
	item, err := c.getOwned(ctx, storyPK(storyID), userID)
	if err != nil {
		return domain.Story{}, fmt.Errorf("repository: GetStory: %w", err)
	}
	s, err := itemToStory(item)
	if err != nil {
		return domain.Story{}, fmt.Errorf("repository: GetStory unmarshal: %w", err)
	}
	return s, nil
}

// UpdateStory replaces title and content of one owned story.
func (c *Client) UpdateStory(ctx context.Context, userID, storyID, title, content string) (domain.Story, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 metaKey(storyPK(storyID)),
		UpdateExpression:    aws.String("SET title = :title, content = :content"),
		ConditionExpression: aws.String("attribute_exists(PK) AND user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":title":   strVal(title),
			":content": strVal(content),
			":uid":     strVal(userID),
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return domain.Story{}, fmt.Errorf("repository: UpdateStory: %w", conditionErr(err))
	}
	if out == nil || len(out.Attributes) == 0 {
		return domain.Story{}, fmt.Errorf("repository: UpdateStory: %w", ErrNotFound)
	}
	s, err := itemToStory(out.Attributes)
	if err != nil {
		return domain.Story{}, fmt.Errorf("repository: UpdateStory unmarshal: %w", err)
	}
	return s, nil
}

// DeleteStory removes one owned story.
func (c *Client) DeleteStory(ctx context.Context, userID, storyID string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 metaKey(storyPK(storyID)),
		ConditionExpression: aws.String("attribute_exists(PK) AND user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": strVal(userID),
		},
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteStory: %w", conditionErr(err))
	}
	return nil
}

// ListStories returns the user's stories, newest first.
func (c *Client) ListStories(ctx context.Context, userID string) ([]domain.Story, error) {
	items, err := c.queryUserIndex(ctx, userIndexPK(userID, "STORY"))
	if err != nil {
		return nil, fmt.Errorf("repository: ListStories query: %w", err)
	}
	out := make([]domain.Story, 0, len(items))
	for _, item := range items {
		s, err := itemToStory(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListStories unmarshal: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CreateTranscript inserts a transcript record.
func (c *Client) CreateTranscript(ctx context.Context, t domain.Transcript) error {
	item := map[string]types.AttributeValue{
		"PK":         strVal(transcriptPK(t.ID)),
		"SK":         strVal(skMeta),
		"GSI1PK":     strVal(userIndexPK(t.UserID, "TRANSCRIPT")),
		"GSI1SK":     strVal(formatTime(t.CreatedAt)),
		"id":         strVal(t.ID),
		"user_id":    strVal(t.UserID),
		"content":    strVal(t.Content),
		"created_at": strVal(formatTime(t.CreatedAt)),
	}
	if err := c.insert(ctx, item); err != nil {
		return fmt.Errorf("repository: CreateTranscript: %w", err)
	}
	return nil
}

// CreateBlog inserts a blog record.
func (c *Client) CreateBlog(ctx context.Context, b domain.Blog) error {
	item := map[string]types.AttributeValue{
		"PK":           strVal(blogPK(b.ID)),
		"SK":           strVal(skMeta),
		"GSI1PK":       strVal(userIndexPK(b.UserID, "BLOG")),
		"GSI1SK":       strVal(formatTime(b.CreatedAt)),
		"id":           strVal(b.ID),
		"user_id":      strVal(b.UserID),
		"title":        strVal(b.Title),
		"summary":      strVal(b.Summary),
		"content_html": strVal(b.ContentHTML),
		"created_at":   strVal(formatTime(b.CreatedAt)),
	}
	if err := c.insert(ctx, item); err != nil {
		return fmt.Errorf("repository: CreateBlog: %w", err)
	}
	return nil
}

// ListBlogs returns the user's blogs, newest first.
func (c *Client) ListBlogs(ctx context.Context, userID string) ([]domain.Blog, error) {
	items, err := c.queryUserIndex(ctx, userIndexPK(userID, "BLOG"))
	if err != nil {
		return nil, fmt.Errorf("repository: ListBlogs query: %w", err)
	}
	out := make([]domain.Blog, 0, len(items))
	for _, item := range items {
		b, err := itemToBlog(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListBlogs unmarshal: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

func (c *Client) insert(ctx context.Context, item map[string]types.AttributeValue) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	return err
}

func (c *Client) getOwned(ctx context.Context, pk, userID string) (map[string]types.AttributeValue, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            metaKey(pk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	owner, _ := strAttr(out.Item, "user_id")
	if owner != userID {
		return nil, ErrNotFound
	}
	return out.Item, nil
}

func (c *Client) queryUserIndex(ctx context.Context, gsiPK string) ([]map[string]types.AttributeValue, error) {
	return c.queryAll(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		IndexName:              aws.String(gsi1Name),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": strVal(gsiPK),
		},
		// Newest first.
		ScanIndexForward: aws.Bool(false),
	})
}

// queryAll follows LastEvaluatedKey until the result set is exhausted.
func (c *Client) queryAll(ctx context.Context, in *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return items, nil
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		next := *in
		next.ExclusiveStartKey = out.LastEvaluatedKey
		in = &next
	}
}

func conditionErr(err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return ErrNotFound
	}
	return err
}

func metaKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": strVal(pk),
		"SK": strVal(skMeta),
	}
}

func itemToConversation(item map[string]types.AttributeValue) (domain.Conversation, error) {
	var (
		conv domain.Conversation
		err  error
	)
	if conv.ID, err = strAttr(item, "id"); err != nil {
		return domain.Conversation{}, err
	}
	if conv.UserID, err = strAttr(item, "user_id"); err != nil {
		return domain.Conversation{}, err
	}
	conv.Title, _ = strAttr(item, "title") // allow empty
	if conv.CreatedAt, err = timeAttr(item, "created_at"); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.Turn{}, err
	}
	if !domain.Role(role).Valid() {
		return domain.Turn{}, fmt.Errorf("repository: invalid role %q", role)
	}
	content, err := strAttr(item, "content")
	if err != nil {
		return domain.Turn{}, err
	}
	created, err := timeAttr(item, "created_at")
	if err != nil {
		return domain.Turn{}, err
	}
	return domain.Turn{Role: domain.Role(role), Content: content, CreatedAt: created}, nil
}

func itemToStory(item map[string]types.AttributeValue) (domain.Story, error) {
	var (
		s   domain.Story
		err error
	)
	if s.ID, err = strAttr(item, "id"); err != nil {
		return domain.Story{}, err
	}
	if s.UserID, err = strAttr(item, "user_id"); err != nil {
		return domain.Story{}, err
	}
	s.ConversationID, _ = strAttr(item, "conversation_id") // nullable
	if s.Title, err = strAttr(item, "title"); err != nil {
		return domain.Story{}, err
	}
	if s.Content, err = strAttr(item, "content"); err != nil {
		return domain.Story{}, err
	}
	if s.CreatedAt, err = timeAttr(item, "created_at"); err != nil {
		return domain.Story{}, err
	}
	return s, nil
}

func itemToBlog(item map[string]types.AttributeValue) (domain.Blog, error) {
	var (
		b   domain.Blog
		err error
	)
	if b.ID, err = strAttr(item, "id"); err != nil {
		return domain.Blog{}, err
	}
	if b.UserID, err = strAttr(item, "user_id"); err != nil {
		return domain.Blog{}, err
	}
	b.Title, _ = strAttr(item, "title")
	b.Summary, _ = strAttr(item, "summary")
	if b.ContentHTML, err = strAttr(item, "content_html"); err != nil {
		return domain.Blog{}, err
	}
	if b.CreatedAt, err = timeAttr(item, "created_at"); err != nil {
		return domain.Blog{}, err
	}
	return b, nil
}

func strVal(s string) *types.AttributeValueMemberS {
	return &types.AttributeValueMemberS{Value: s}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	raw, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := parseTime(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return t, nil
}
