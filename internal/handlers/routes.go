package handlers

import "net/http"

// RegisterRoutes wires every HTTP endpoint onto the provided mux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	mux.HandleFunc("GET /healthz", health.Handle)

	if deps.DownloadDir != "" {
		files := http.FileServer(http.Dir(deps.DownloadDir))
		mux.Handle("GET /downloads/", http.StripPrefix("/downloads/", files))
	}

	authHandler := AuthHandler{Users: deps.Users, Sessions: deps.Sessions}
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/v1/auth/signup", authHandler.SignUp)
	mux.HandleFunc("POST /api/v1/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /api/v1/auth/password-reset", authHandler.RequestPasswordReset)

	downloadHandler := DownloadHandler{
		Submitter: deps.Submitter,
		Users:     deps.Users,
		Sessions:  deps.Sessions,
		RateLimit: deps.RateLimit,
	}
	mux.HandleFunc("POST /api/download", downloadHandler.Submit)

	fshareHandler := FshareHandler{
		Submitter: deps.Submitter,
		Quota:     deps.Quota,
		FileInfo:  deps.FshareInfo,
		Uploader:  deps.Uploader,
		Progress:  deps.Progress,
		Users:     deps.Users,
		Sessions:  deps.Sessions,
		RateLimit: deps.RateLimit,
	}
	mux.HandleFunc("POST /api/fshare/download", fshareHandler.Download)
	mux.HandleFunc("GET /api/fshare/status", fshareHandler.Status)
	mux.HandleFunc("POST /api/fshare/info", fshareHandler.Info)
	mux.HandleFunc("POST /api/fshare/upload-to-drive", fshareHandler.UploadToDrive)
	mux.HandleFunc("GET /api/fshare/progress/{id}", fshareHandler.ProgressSnapshot)
	mux.HandleFunc("GET /api/events/{id}", fshareHandler.Events)

	adminHandler := AdminHandler{
		Users:     deps.Users,
		Sessions:  deps.Sessions,
		Requests:  deps.Requests,
		Quota:     deps.Quota,
		Platforms: deps.Platforms,
	}
	mux.HandleFunc("GET /api/admin/requests", adminHandler.ListRequests)
	mux.HandleFunc("GET /api/admin/requests/{id}", adminHandler.GetRequest)
	mux.HandleFunc("DELETE /api/admin/requests/{id}", adminHandler.DeleteRequest)
	mux.HandleFunc("GET /api/admin/stats", adminHandler.Stats)
	mux.HandleFunc("POST /api/admin/platforms", adminHandler.ConfigurePlatform)
	mux.HandleFunc("POST /api/admin/bandwidth/reset", adminHandler.ResetBandwidth)
}
