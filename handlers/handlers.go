package handlers

import (
	"net/http"
	"strings"

	"github.com/edustack/practice-api/adaptive"
	"github.com/edustack/practice-api/db"
	"github.com/edustack/practice-api/quiz"
	"github.com/edustack/practice-api/utils"
)

// API wrapper to hold all handlers
type API struct {
	practiceHandlers *PracticeHandlers
	quizHandlers     *QuizHandlers
	teacherHandlers  *TeacherHandlers
	contentHandlers  *ContentHandlers
}

func NewAPI(database *db.DB, engine *adaptive.PracticeEngine, scoring *adaptive.MasteryScoringService, sessions *quiz.SessionService) *API {
	return &API{
		practiceHandlers: NewPracticeHandlers(database, engine, scoring),
		quizHandlers:     NewQuizHandlers(database, sessions),
		teacherHandlers:  NewTeacherHandlers(database, sessions),
		contentHandlers:  NewContentHandlers(database),
	}
}

func NewRouter(database *db.DB, engine *adaptive.PracticeEngine, scoring *adaptive.MasteryScoringService, sessions *quiz.SessionService) http.Handler {
	api := NewAPI(database, engine, scoring, sessions)

	mux := http.NewServeMux()

	// Health check (no identity required)
	mux.HandleFunc("/health", healthCheck)

	// Student practice routes
	mux.HandleFunc("/practice/recommendations", api.practiceHandlers.GetRecommendations)
	mux.HandleFunc("/masteries", api.practiceHandlers.GetMasteries)
	mux.HandleFunc("/events", api.practiceHandlers.GetEvents)
	mux.HandleFunc("/attempts", api.practiceHandlers.HandleAttempts)
	mux.HandleFunc("/attempts/", api.practiceHandlers.HandleAttemptSubpath)

	// Student quiz routes: /quiz-sessions plus nested item/submit/telemetry paths
	mux.HandleFunc("/quiz-sessions", api.quizHandlers.HandleSessions)
	mux.HandleFunc("/quiz-sessions/", api.quizHandlers.HandleSessionSubpath)

	// Teacher routes
	mux.HandleFunc("/teacher/quiz-sessions", api.teacherHandlers.ListSessions)
	mux.HandleFunc("/teacher/quiz-sessions/", api.teacherHandlers.HandleSessionSubpath)

	// Import route
	mux.HandleFunc("/import", api.contentHandlers.ImportContent)

	// Wrap with CORS middleware
	return corsMiddleware(mux)
}

// CORS middleware to allow web requests
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+userIDHeader)

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	utils.LogHTTP("%s /health", r.Method)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// splitPath trims a prefix and splits the remainder into segments.
func splitPath(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
