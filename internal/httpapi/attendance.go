package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"liveclass/internal/auth"
	"liveclass/internal/roster"
)

type attendanceRequest struct {
	ClassID     string `json:"classId" binding:"required"`
	StudentID   string `json:"studentId" binding:"required"`
	IsReconnect bool   `json:"isReconnect"`
}

func (h *Handler) bindAttendance(c *gin.Context) (attendanceRequest, bool) {
	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, badRequest{err})
		return req, false
	}
	if !auth.CanActFor(c, req.StudentID) {
		writeError(c, h.log, errForbidden)
		return req, false
	}
	return req, true
}

func (h *Handler) join(c *gin.Context) {
	req, ok := h.bindAttendance(c)
	if !ok {
		return
	}
	res, err := h.attendance.Join(c.Request.Context(), req.ClassID, req.StudentID, req.IsReconnect)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	msg := "Joined class"
	if res.AlreadyJoined {
		msg = "Already joined"
	}
	c.JSON(http.StatusOK, gin.H{"message": msg, "attendance": res.Record, "alreadyJoined": res.AlreadyJoined})
}

func (h *Handler) reconnect(c *gin.Context) {
	req, ok := h.bindAttendance(c)
	if !ok {
		return
	}
	rec, err := h.attendance.Reconnect(c.Request.Context(), req.ClassID, req.StudentID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reconnected", "attendance": rec})
}

func (h *Handler) leave(c *gin.Context) {
	req, ok := h.bindAttendance(c)
	if !ok {
		return
	}
	rec, err := h.attendance.Leave(c.Request.Context(), req.ClassID, req.StudentID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left class", "attendance": rec})
}

func (h *Handler) classAttendance(c *gin.Context) {
	rep, err := h.attendance.ClassAttendance(c.Request.Context(), c.Param("classId"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) summary(c *gin.Context) {
	reports, err := h.attendance.Summary(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": reports})
}

func (h *Handler) studentHistory(c *gin.Context) {
	id := c.Param("studentId")
	if !auth.CanActFor(c, id) {
		writeError(c, h.log, errForbidden)
		return
	}
	hist, err := h.attendance.StudentHistory(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

type studentRequest struct {
	ID      string `json:"id" binding:"required"`
	Name    string `json:"name"`
	Email   string `json:"email" binding:"omitempty,email"`
	Program string `json:"program" binding:"required"`
}

func (h *Handler) upsertStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, badRequest{err})
		return
	}
	st, err := h.students.Upsert(c.Request.Context(), roster.Student{
		ID:      req.ID,
		Name:    req.Name,
		Email:   req.Email,
		Program: req.Program,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Student saved", "student": st})
}
