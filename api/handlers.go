package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Peap0ds-23/collaborative-todo-1/gateway"
	"github.com/Peap0ds-23/collaborative-todo-1/realtime"
)

// Register wires up all routes on the provided Echo instance. dedup may be
// nil to disable Idempotency-Key checks.
func Register(e *echo.Echo, svc Gateway, auth Authenticator, feed realtime.Feed, dedup Deduper, logger *log.Logger) {
	e.GET("/healthz", healthz())

	authn := authenticate(auth)
	once := idempotent(dedup)

	ag := e.Group("/auth", observe(logger))
	ag.POST("/signup", signUp(svc))
	ag.POST("/signin", signIn(svc, auth))
	ag.POST("/signout", signOut(svc, auth))
	ag.GET("/user", currentUser(svc), authn)

	g := e.Group("/api", observe(logger), authn)
	g.GET("/tasks", listTasks(svc))
	g.POST("/tasks", addTask(svc), once)
	g.DELETE("/tasks", deleteTasks(svc))
	g.PATCH("/tasks/:id", editTask(svc))
	g.DELETE("/tasks/:id", deleteTask(svc))
	g.POST("/tasks/:id/toggle", toggleTask(svc), once)
	g.GET("/tasks/:id/shares", listShares(svc))
	g.POST("/tasks/:id/shares", shareTask(svc), once)
	g.DELETE("/tasks/:id/shares/:email", removeShare(svc))
	g.GET("/tasks/:id/history", taskHistory(svc))
	g.PUT("/order", saveOrder(svc))
	g.GET("/notifications", listNotifications(svc))
	g.POST("/notifications/read-all", markAllRead(svc))
	g.POST("/notifications/:id/read", markRead(svc))
	g.GET("/stream", streamChanges(feed, logger))
}

type deletedResponse struct {
	Deleted int `json:"deleted"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}
}

func listTasks(svc Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		list, err := svc.ListTasks(c.Request().Context(), identityFrom(c))
		if err != nil {
			return writeError(c, err)
		}
		metricsFrom(c).SetItemsReturned(len(list.Incomplete) + len(list.Complete))
		return c.JSON(http.StatusOK, list)
	}
}

func (b taskBody) input() gateway.TaskInput {
	return gateway.TaskInput{
		Title:       b.Title,
		Description: b.Description,
		Due:         b.DueDate,
		Priority:    b.Priority,
		TimeZone:    b.TimeZone,
	}
}

func addTask(svc Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body taskBody
		if err := bindBody(c, taskSchema, &body); err != nil {
			return writeError(c, err)
		}
		task, err := svc.AddTask(c.Request().Context(), identityFrom(c), body.input())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func editTask(svc Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body taskBody
		if err := bindBody(c, taskSchema, &body); err != nil {
			return writeError(c, err)
		}
		task, err := svc.EditTask(c.Request().Context(), identityFrom(c), c.Param("id"), body.input())
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func toggleTask(svc Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body toggleBody
		if err := bindBody(c, toggleSchema, &body); err != nil {
			return writeError(c, err)
		}
		task, err := svc.SetComplete(c.Request().Context(), identityFrom(c), c.Param("id"), body.Complete)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(svc Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.DeleteTask(c.Request().Context(), identityFrom(c), c.Param("id")); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// deleteTasks clears the caller's completed tasks with ?completed=true and
// every owned task otherwise.
func deleteTasks(svc Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		completedOnly := false
		if raw := c.QueryParam("completed"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				metricsFrom(c).SetErrorStage("validation")
				return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid completed flag", Field: "completed"})
			}
			completedOnly = v
		}
		ctx := c.Request().Context()
		var (
			n   int
			err error
		)
		if completedOnly {
			n, err = svc.DeleteCompleted(ctx, identityFrom(c))
		} else {
			n, err = svc.DeleteAll(ctx, identityFrom(c))
		}
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, deletedResponse{Deleted: n})
	}
}

func saveOrder(svc Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body orderBody
		if err := bindBody(c, orderSchema, &body); err != nil {
			return writeError(c, err)
		}
		if err := svc.UpdateOrder(c.Request().Context(), identityFrom(c), body.TaskIDs); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func listShares(svc Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		collaborators, err := svc.Collaborators(c.Request().Context(), identityFrom(c), c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		metricsFrom(c).SetItemsReturned(len(collaborators))
		return c.JSON(http.StatusOK, collaborators)
	}
}

func shareTask(svc Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body shareBody
		if err := bindBody(c, shareSchema, &body); err != nil {
			return writeError(c, err)
		}
		share, err := svc.ShareTask(c.Request().Context(), identityFrom(c), c.Param("id"), body.Email)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusCreated, share)
	}
}

func removeShare(svc Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		email := c.Param("email")
		if unescaped, err := url.PathUnescape(email); err == nil {
			email = unescaped
		}
		if err := svc.RemoveCollaborator(c.Request().Context(), identityFrom(c), c.Param("id"), email); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func taskHistory(svc Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		entries, err := svc.TaskHistory(c.Request().Context(), identityFrom(c), c.Param("id"))
		if err != nil {
			return writeError(c, err)
		}
		metricsFrom(c).SetItemsReturned(len(entries))
		return c.JSON(http.StatusOK, entries)
	}
}

func listNotifications(svc Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		items, err := svc.Notifications(c.Request().Context(), identityFrom(c))
		if err != nil {
			return writeError(c, err)
		}
		metricsFrom(c).SetItemsReturned(len(items))
		return c.JSON(http.StatusOK, items)
	}
}

func markRead(svc Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.MarkNotificationRead(c.Request().Context(), identityFrom(c), c.Param("id")); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func markAllRead(svc Gateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.MarkAllNotificationsRead(c.Request().Context(), identityFrom(c)); err != nil {
			return writeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
