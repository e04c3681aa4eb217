package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"social-chat/internal/cache"
	"social-chat/internal/config"
	"social-chat/internal/db"
	"social-chat/internal/friendship"
	grpcserver "social-chat/internal/grpc"
	"social-chat/internal/handlers"
	"social-chat/internal/media"
	"social-chat/internal/middleware"
	"social-chat/internal/observability"
	"social-chat/internal/push"
	"social-chat/internal/rabbitmq"
	"social-chat/internal/repositories"
	"social-chat/internal/repositories/memory"
	"social-chat/internal/repositories/mongostore"
	"social-chat/internal/service"
	"social-chat/internal/telemetry"
	"social-chat/internal/ws"
)

const auditRoutingKey = "audit.events"

// stores groups the repositories one driver provides.
type stores struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	friends  repositories.FriendRepository
	users    repositories.UserRepository
	posts    repositories.PostRepository
	close    func(context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}
	log := observability.NewLogger(cfg.LogLevel, cfg.IsProd())
	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		log.WithError(err).Fatal("failed to init tracing")
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, running without friendship cache and push")
			rdb = nil
		}
	}

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to init media storage")
	}
	pipeline := media.NewPipeline(storage, cfg.MaxUploadBytes, log)

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, auditRoutingKey, "social-chat", cfg.Env, log)

	var directory service.UserDirectory = st.users
	var profileWriter service.ProfileWriter = st.users
	var finder service.UserFinder = st.users
	if cfg.UserGRPCAddr != "" {
		conn, err := grpcserver.Dial(cfg.UserGRPCAddr)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to user directory")
		}
		defer conn.Close()
		userClient := grpcserver.NewUserClient(conn)
		directory, profileWriter, finder = userClient, userClient, userClient
	}

	gate := friendship.NewGate(st.friends, nil, log)
	var friendCache service.FriendshipCache = gate
	if rdb != nil {
		gate.Cache = cache.NewFriendCache(rdb, cfg.FriendCacheTTL)
	}

	hub := ws.NewHub(log)
	chats := &service.ChatService{
		Chats:    st.chats,
		Messages: st.messages,
		Users:    directory,
		Gate:     gate,
		Media:    pipeline,
		Notifier: hub,
		Events:   publisher,
		Log:      log,
	}

	var subs *cache.SubscriptionStore
	var notifier *push.Notifier
	if rdb != nil && cfg.PushEnabled() {
		subs = cache.NewSubscriptionStore(rdb)
		notifier = push.NewNotifier(subs, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber, log)
		chats.Push = notifier
	}

	friends := &service.FriendService{
		Requests: st.friends,
		Chats:    st.chats,
		Users:    directory,
		Cache:    friendCache,
		Events:   publisher,
		Log:      log,
	}
	posts := &service.PostService{Posts: st.posts, Media: pipeline, Events: publisher, Log: log}
	profiles := &service.ProfileService{Users: profileWriter, Media: pipeline, Profiles: directory}
	search := &service.UserSearch{Users: finder}

	auth := middleware.NewAuthenticator(cfg.JWTSecret)

	chatHandler := handlers.NewChatHandler(chats, audit, log)
	friendHandler := handlers.NewFriendHandler(friends, audit, log)
	mediaHandler := handlers.NewMediaHandler(posts, profiles, audit, log)
	userHandler := handlers.NewUserHandler(search, log)
	var pushHandler *handlers.PushHandler
	if subs != nil {
		pushHandler = handlers.NewPushHandler(subs, cfg.VAPIDPublicKey, log)
	} else {
		pushHandler = handlers.NewPushHandler(nil, "", log)
	}
	chatWS := ws.NewChatWebSocketHandler(hub, auth, chats, log)
	chatWS.AllowOrigins(cfg.CORSOrigins)

	router := gin.New()
	router.MaxMultipartMemory = 8 << 20
	router.Use(
		gin.Recovery(),
		middleware.CORS(cfg.CORSOrigins),
		observability.RequestID(),
		otelgin.Middleware("social-chat"),
		observability.HTTPMetricsMiddleware(),
		middleware.RequestLogger(log),
	)

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	router.GET("/ws", chatWS.Handle)

	api := router.Group("/api/v1")
	api.GET("/health", handlers.Health)
	api.GET("/push/vapid-public-key", pushHandler.PublicKey)

	authed := api.Group("", middleware.AuthMiddleware(auth))
	authed.GET("/chat", chatHandler.ListChats)
	authed.GET("/chat/:chatId", chatHandler.GetChatMessages)
	authed.POST("/chat/user/:userId", chatHandler.StartChat)
	authed.POST("/chat/:chatId/messages", chatHandler.PostChatMessage)

	authed.POST("/users/:id/friend-request", friendHandler.SendRequest)
	authed.PUT("/users/friend-request/:requestId/accept", friendHandler.Accept)
	authed.PUT("/users/friend-request/:requestId/reject", friendHandler.Reject)
	authed.GET("/users/friend-requests", friendHandler.ListRequests)
	authed.GET("/users/friends", friendHandler.ListFriends)
	authed.GET("/users/search", userHandler.Search)
	authed.PUT("/users/profile-picture", mediaHandler.UpdateProfilePicture)

	authed.POST("/posts", mediaHandler.CreatePost)
	authed.POST("/push/subscribe", pushHandler.Subscribe)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	health := grpcserver.NewHealthServer(log)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.WithError(err).Fatal("failed to listen for grpc")
	}
	go func() {
		if err := health.Serve(ctx, lis); err != nil {
			log.WithError(err).Error("grpc server stopped")
		}
	}()

	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	health.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	if notifier != nil {
		notifier.Wait()
	}
	if err := publisher.Close(); err != nil {
		log.WithError(err).Warn("amqp close")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := st.close(shutdownCtx); err != nil {
		log.WithError(err).Warn("store close")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Warn("tracing shutdown")
	}
}

func openStores(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (stores, error) {
	switch cfg.StoreDriver {
	case "memory":
		s := memory.NewStore()
		return stores{s, s, s, s, s, func(context.Context) error { return nil }}, nil
	case "mongo":
		mdb, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
		if err != nil {
			return stores{}, err
		}
		s := mongostore.NewStore(mdb)
		return stores{s, s, s, s, s, mdb.Client().Disconnect}, nil
	default:
		sqlDB, err := db.Connect(ctx, cfg.DBDSN, log)
		if err != nil {
			return stores{}, err
		}
		return stores{
			chats:    repositories.NewChatRepo(sqlDB),
			messages: repositories.NewMessageRepo(sqlDB),
			friends:  repositories.NewFriendRepo(sqlDB),
			users:    repositories.NewUserRepo(sqlDB),
			posts:    repositories.NewPostRepo(sqlDB),
			close:    func(context.Context) error { return sqlDB.Close() },
		}, nil
	}
}

func openStorage(ctx context.Context, cfg config.Config) (media.Storage, error) {
	if cfg.StorageDriver == "cloudinary" {
		return media.NewCloudinaryStorage(cfg.CloudinaryURL, cfg.CloudinaryFolder)
	}
	return media.NewS3Storage(ctx, cfg.AWSRegion, cfg.AWSBucket, cfg.S3Endpoint)
}
