package translate

import (
	"sync"

	"dc2kook/internal/config"
	"dc2kook/internal/logger"
)

// Manager 持有当前生效的翻译服务商
//
// Update 在配置（服务商或凭据）变化时重建服务商；凭据缺失时不持有服务商，
// 调用方据此跳过翻译。
type Manager struct {
	mu       sync.Mutex
	cfg      config.TranslationOptions
	provider Provider
	built    bool

	opts []Option
}

// NewManager 创建翻译管理器；opts 透传给每次构建的服务商
func NewManager(opts ...Option) *Manager {
	return &Manager{opts: opts}
}

// Update 应用新的翻译配置，返回是否发生了重建
func (m *Manager) Update(cfg config.TranslationOptions) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.built && m.cfg == cfg {
		return false
	}

	m.cfg = cfg
	m.built = true
	m.provider = nil

	if !cfg.EnableTranslation {
		logger.L().Info("Translation disabled")
		return true
	}

	provider, err := New(cfg, m.opts...)
	if err != nil {
		logger.L().Warnf("Translation provider unavailable, passing text through: %v", err)
		return true
	}

	m.provider = provider
	logger.L().Infof("Translation provider initialized: %s (%s -> %s)", provider.Name(), cfg.SourceLanguage, cfg.TargetLanguage)
	return true
}

// IsEnabled 翻译开关打开且存在可用服务商
func (m *Manager) IsEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.EnableTranslation && m.provider != nil
}

// Active 返回当前服务商，可能为 nil
func (m *Manager) Active() Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.provider
}
