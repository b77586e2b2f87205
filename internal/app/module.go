package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/karteai/billing/internal/app/api/server"
	"github.com/karteai/billing/internal/app/service/eventlog"
	"github.com/karteai/billing/internal/app/service/notifier"
	"github.com/karteai/billing/internal/app/service/receipt"
	"github.com/karteai/billing/internal/app/service/reconciler"
	"github.com/karteai/billing/internal/app/service/statistics"
	"github.com/karteai/billing/internal/app/service/subscription"
	"github.com/karteai/billing/internal/app/service/userprofile"
	"github.com/karteai/billing/internal/app/service/webhook"
	"github.com/karteai/billing/internal/platform/db"
	"github.com/karteai/billing/internal/platform/processor"
	"github.com/karteai/billing/internal/platform/redisstore"
	"github.com/karteai/billing/pkg/auth"
	"github.com/karteai/billing/pkg/config"
	"github.com/karteai/billing/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	auth.Module,
	processor.Module,
	redisstore.Module,
	server.Module,
	subscription.Module,
	statistics.Module,
	eventlog.Module,
	notifier.Module,
	receipt.Module,
	userprofile.Module,
	webhook.Module,
	reconciler.Module,
)
