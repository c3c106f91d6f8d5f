package api

import (
	"log"
	"net/http"

	"github.com/anoixa/image-gallery/api/common"
	"github.com/anoixa/image-gallery/internal/models"
	"github.com/anoixa/image-gallery/internal/session"
	"github.com/anoixa/image-gallery/utils"
	"github.com/gin-gonic/gin"
)

// LoginHandler 会话处理器
type LoginHandler struct {
	sessions *session.Context
	// 会话变化后调用，用于刷新依赖当前用户的画廊
	onChange func()
}

// NewLoginHandler 创建会话处理器，onChange 可以为 nil
func NewLoginHandler(sessions *session.Context, onChange func()) *LoginHandler {
	return &LoginHandler{
		sessions: sessions,
		onChange: onChange,
	}
}

type loginRequestBody struct {
	UserID   string `json:"userid" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type registerRequestBody struct {
	UserID   string `json:"userid" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userid,omitempty"`
	Name          string `json:"name,omitempty"`
	Bio           string `json:"bio,omitempty"`
}

func toSessionResponse(s models.Session, ok bool) sessionResponse {
	if !ok {
		return sessionResponse{}
	}
	return sessionResponse{Authenticated: true, UserID: s.ActorID, Name: s.DisplayName, Bio: s.Bio}
}

// CurrentHandlerFunc 当前会话
// @Summary      Current session
// @Description  Session of the current user, if any
// @Tags         session
// @Produce      json
// @Success      200  {object}  common.Response  "Session state"
// @Router       /session [get]
func (h *LoginHandler) CurrentHandlerFunc(context *gin.Context) {
	common.RespondSuccess(context, toSessionResponse(h.sessions.Current()))
}

// LoginHandlerFunc user login
// @Summary      Login
// @Description  Log in against the remote service and persist the session
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        request  body  loginRequestBody  true  "Credentials"
// @Success      200  {object}  common.Response  "Logged in"
// @Failure      400  {object}  common.Response  "Invalid request body"
// @Failure      401  {object}  common.Response  "Invalid credentials"
// @Router       /session/login [post]
func (h *LoginHandler) LoginHandlerFunc(context *gin.Context) {
	var req loginRequestBody
	if err := context.ShouldBindJSON(&req); err != nil {
		common.RespondError(context, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sessions.Login(context.Request.Context(), req.UserID, req.Password); err != nil {
		log.Printf("[API] Login failed for %s: %v", utils.SanitizeLogUsername(req.UserID), err)
		if common.StatusFor(err) == http.StatusUnauthorized {
			common.RespondError(context, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		common.RespondServiceError(context, err)
		return
	}
	h.changed()

	common.RespondSuccessMessage(context, "Login successful", toSessionResponse(h.sessions.Current()))
}

// RegisterHandlerFunc 注册新用户，不会自动登录
// @Summary      Register
// @Description  Register a new account without logging in
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        request  body  registerRequestBody  true  "Account"
// @Success      201  {object}  common.Response  "Account registered"
// @Failure      400  {object}  common.Response  "Invalid request body"
// @Failure      409  {object}  common.Response  "User already exists"
// @Router       /session/register [post]
func (h *LoginHandler) RegisterHandlerFunc(context *gin.Context) {
	var req registerRequestBody
	if err := context.ShouldBindJSON(&req); err != nil {
		common.RespondError(context, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.sessions.Register(context.Request.Context(), req.UserID, req.Name, req.Password); err != nil {
		common.RespondServiceError(context, err)
		return
	}
	common.RespondCreated(context, "Registration successful", gin.H{"userid": req.UserID})
}

// LogoutHandlerFunc user logout
// @Summary      Logout
// @Description  Clear the current and persisted session
// @Tags         session
// @Produce      json
// @Success      200  {object}  common.Response  "Logged out"
// @Router       /session/logout [post]
func (h *LoginHandler) LogoutHandlerFunc(context *gin.Context) {
	if _, ok := h.sessions.Current(); !ok {
		common.RespondSuccessMessage(context, "Already logged out", nil)
		return
	}
	h.sessions.Logout(context.Request.Context())
	h.changed()

	common.RespondSuccessMessage(context, "Logout successful", nil)
}

// ProfileHandlerFunc 查询用户资料
// @Summary      User profile
// @Description  Public profile of a user
// @Tags         users
// @Produce      json
// @Param        userid  path  string  true  "User ID"
// @Success      200  {object}  common.Response  "Profile"
// @Failure      404  {object}  common.Response  "User not found"
// @Failure      502  {object}  common.Response  "Remote service failure"
// @Router       /users/{userid} [get]
func (h *LoginHandler) ProfileHandlerFunc(context *gin.Context) {
	profile, err := h.sessions.Profile(context.Request.Context(), context.Param("userid"))
	if err != nil {
		common.RespondServiceError(context, err)
		return
	}
	common.RespondSuccess(context, profile)
}

func (h *LoginHandler) changed() {
	if h.onChange != nil {
		h.onChange()
	}
}
