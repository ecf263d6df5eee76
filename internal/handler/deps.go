package handler

import (
	"convochat/internal/app/chat"
	"convochat/internal/app/store"
	"convochat/internal/configs"
)

type AppDeps struct {
	Manager *chat.Manager
	Config  *configs.AppConfig
	Store   store.Store
}
