package platform

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lumohealth/healthsyncd/internal/domain"
)

// settingsAttempt is one deep link or intent in the remediation chain.
type settingsAttempt struct {
	name string
	args []string
}

// SettingsLauncher implements domain.SettingsOpener with a per-platform
// chain of deep links ending in a generic OS settings fallback. The first
// attempt that resolves wins; the chain only fails when every attempt does.
type SettingsLauncher struct {
	platform domain.Platform
	runner   CommandRunner
	logger   *zap.Logger
}

// NewSettingsLauncher creates a launcher for the active platform.
func NewSettingsLauncher(platform domain.Platform, logger *zap.Logger) *SettingsLauncher {
	return &SettingsLauncher{platform: platform, runner: &RealCommandRunner{}, logger: logger}
}

// NewSettingsLauncherWithRunner creates a launcher with an injectable
// runner (for testing).
func NewSettingsLauncherWithRunner(platform domain.Platform, runner CommandRunner, logger *zap.Logger) *SettingsLauncher {
	return &SettingsLauncher{platform: platform, runner: runner, logger: logger}
}

// OpenSettings walks the deep-link chain for the platform.
func (l *SettingsLauncher) OpenSettings(ctx context.Context) error {
	attempts := l.chain()

	for _, attempt := range attempts {
		if err := l.runner.Run(ctx, attempt.name, attempt.args...); err != nil {
			l.logger.Debug("settings deep link did not resolve",
				zap.String("target", attempt.name),
				zap.Strings("args", attempt.args),
				zap.Error(err))
			continue
		}
		return nil
	}

	return fmt.Errorf("no settings surface resolved for platform %s", l.platform)
}

func (l *SettingsLauncher) chain() []settingsAttempt {
	switch l.platform {
	case domain.PlatformHealthKit:
		return []settingsAttempt{
			// Health app permission surface, then the app itself, then
			// generic system settings.
			{name: "open", args: []string{"x-apple-health://"}},
			{name: "open", args: []string{"-b", "com.apple.Health"}},
			{name: "open", args: []string{"-b", "com.apple.systempreferences"}},
		}
	case domain.PlatformHealthConnect:
		return []settingsAttempt{
			{name: "am", args: []string{"start", "-a", "androidx.health.ACTION_HEALTH_CONNECT_SETTINGS"}},
			{name: "am", args: []string{"start", "-a", "android.health.connect.action.HEALTH_HOME_SETTINGS"}},
			{name: "am", args: []string{"start", "-a", "android.settings.SETTINGS"}},
		}
	default:
		return []settingsAttempt{
			{name: "open", args: []string{"-b", "com.apple.systempreferences"}},
			{name: "xdg-open", args: []string{"settings://"}},
		}
	}
}

// Ensure SettingsLauncher implements domain.SettingsOpener.
var _ domain.SettingsOpener = (*SettingsLauncher)(nil)
