// Package discord Discord 网关接入：接收消息、分发管理命令、提交转发任务
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"dc2kook/internal/logger"
	"dc2kook/internal/relay"
	"dc2kook/internal/worker"

	"github.com/bwmarrin/discordgo"
)

// Dispatcher 入站消息处理
type Dispatcher interface {
	OnInboundMessage(ctx context.Context, ev *relay.Event)
}

// Commands 管理命令
type Commands interface {
	Matches(content string) bool
	Handle(ctx context.Context, content string, isAdmin bool) string
}

// Listener Discord 消息监听器
type Listener struct {
	session    *discordgo.Session
	dispatcher Dispatcher
	commands   Commands
	pool       *worker.Pool

	mu     sync.RWMutex
	ctx    context.Context
	selfID string
}

// NewListener 创建监听器（尚未连接网关）
func NewListener(token string, dispatcher Dispatcher, commands Commands, pool *worker.Pool) (*Listener, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("discord token cannot be empty")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentMessageContent

	l := &Listener{
		session:    session,
		dispatcher: dispatcher,
		commands:   commands,
		pool:       pool,
		ctx:        context.Background(),
	}
	session.AddHandler(l.onReady)
	session.AddHandler(l.onMessageCreate)
	return l, nil
}

// Start 连接网关；ctx 的值会传给后续任务，但取消信号不会
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	l.ctx = ctx
	l.mu.Unlock()

	if err := l.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	return nil
}

// Close 断开网关连接
func (l *Listener) Close() error {
	return l.session.Close()
}

// SelfID 当前 Bot 的用户 ID（Ready 之前为空）
func (l *Listener) SelfID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.selfID
}

func (l *Listener) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		return
	}
	l.mu.Lock()
	l.selfID = r.User.ID
	l.mu.Unlock()

	logger.L().Infof("Discord gateway ready: user=%s (%s), guilds=%d", r.User.Username, r.User.ID, len(r.Guilds))
}

func (l *Listener) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}

	l.mu.RLock()
	// 任务不随 ctx 取消；单次调用由 HTTP 超时约束
	ctx := context.WithoutCancel(l.ctx)
	selfID := l.selfID
	l.mu.RUnlock()

	content := strings.TrimSpace(m.Content)
	if l.commands != nil && l.commands.Matches(content) {
		if m.Author.ID == selfID {
			return
		}
		l.pool.Submit(worker.Task{
			Ctx:  ctx,
			Name: "command:" + m.ID,
			Run: func(ctx context.Context) {
				reply := l.commands.Handle(ctx, content, isAdmin(s, m))
				if reply == "" {
					return
				}
				if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
					logger.L().Errorf("Failed to send command reply to %s: %v", m.ChannelID, err)
				}
			},
		})
		return
	}

	ev := ConvertMessage(m.Message, selfID)
	l.pool.Submit(worker.Task{
		Ctx:  ctx,
		Name: "forward:" + m.ID,
		Run: func(ctx context.Context) {
			l.dispatcher.OnInboundMessage(ctx, ev)
		},
	})
}

// isAdmin 发送者在该频道拥有 Administrator 权限
func isAdmin(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	if m.GuildID == "" {
		return false
	}

	perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID)
	if err != nil {
		logger.L().Warnf("Failed to resolve permissions for user %s: %v", m.Author.ID, err)
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}
