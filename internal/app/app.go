// Package app builds the service graph shared by the entrypoints.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"memory-keeper/internal/config"
	"memory-keeper/internal/integrations/openai"
	"memory-keeper/internal/integrations/paramstore"
	"memory-keeper/internal/integrations/speech"
	"memory-keeper/internal/repository"
	"memory-keeper/internal/usecase"
)

type Services struct {
	Conversations *usecase.ConversationService
	Chat          *usecase.ChatService
	Stories       *usecase.StoryService
	Blogs         *usecase.BlogService
	Playback      *usecase.PlaybackService
}

// store is everything the services persist through.
type store interface {
	usecase.ConversationStore
	usecase.StoryStore
	usecase.BlogStore
}

// InitLogger installs a JSON slog handler as the process default.
func InitLogger(cfg *config.Config) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
}

// Build wires AWS clients, the completion client and the services from cfg.
func Build(ctx context.Context, cfg *config.Config) (*Services, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("create SSM client: %w", err)
	}

	llm, err := openai.NewClient(ssmClient, cfg.ParamPrefix,
		openai.WithBaseURL(cfg.LLMBaseURL),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.LLMTimeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("create OpenAI client: %w", err)
	}

	tts, err := speech.NewClient(llm,
		speech.WithModel(cfg.SpeechModel),
		speech.WithDefaultVoice(cfg.SpeechVoice),
		speech.WithHTTPClient(&http.Client{Timeout: cfg.LLMTimeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	var st store
	switch cfg.StoreBackend {
	case config.StoreMemory:
		st = repository.NewMemory()
	default:
		st, err = repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
		if err != nil {
			return nil, fmt.Errorf("create state client: %w", err)
		}
	}

	return NewServices(cfg, st, llm, tts)
}

// NewServices builds the usecase layer over already constructed adapters.
func NewServices(cfg *config.Config, st store, llm usecase.LLMClient, tts usecase.Synthesizer) (*Services, error) {
	policy, err := usecase.ParseWritePolicy(cfg.TurnWrites)
	if err != nil {
		return nil, err
	}
	convs, err := usecase.NewConversationService(st, st, policy)
	if err != nil {
		return nil, fmt.Errorf("create conversation service: %w", err)
	}
	chat, err := usecase.NewChatService(llm, convs, cfg.ChatModel, cfg.ChatMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("create chat service: %w", err)
	}
	stories, err := usecase.NewStoryService(llm, st, cfg.StoryModel)
	if err != nil {
		return nil, fmt.Errorf("create story service: %w", err)
	}
	blogs, err := usecase.NewBlogService(llm, st, cfg.BlogModel, cfg.BlogMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("create blog service: %w", err)
	}
	playback, err := usecase.NewPlaybackService(tts, stories)
	if err != nil {
		return nil, fmt.Errorf("create playback service: %w", err)
	}
	return &Services{
		Conversations: convs,
		Chat:          chat,
		Stories:       stories,
		Blogs:         blogs,
		Playback:      playback,
	}, nil
}
