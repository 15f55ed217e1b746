package users

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"virtwin_back/models"
	"virtwin_back/store"
)

// Module 聚合用户管理相关的依赖。
type Module struct {
	db *gorm.DB
}

var (
	// ErrEmailTaken 标识邮箱唯一性冲突。
	ErrEmailTaken = errors.New("users: email already exists")
	// ErrWeakPassword 标识密码长度不足。
	ErrWeakPassword = errors.New("users: password must be at least 6 characters")
)

var userSearchColumns = []string{"name", "email"}

var userSortColumns = map[string]string{
	"id":    "id",
	"name":  "name",
	"email": "email",
}

// RegisterRoutes 初始化用户模块并注册所有相关路由。
func RegisterRoutes(router *gin.Engine, db *gorm.DB) (*Module, error) {
	if db == nil {
		return nil, errors.New("users: database handle is required")
	}

	module := &Module{db: db}

	group := router.Group("/users")
	group.GET("", module.handleListUsers)
	group.GET("/search", module.handleSearchUsers)
	group.GET("/:id", module.handleGetUser)
	group.POST("", module.handleCreateUser)
	group.PUT("/:id", module.handleUpdateUser)
	group.DELETE("/:id", module.handleDeleteUser)

	return module, nil
}

type createUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// parseIDParam 解析路径中的数字主键。
func parseIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// hashPassword 以 bcrypt 哈希密码，拒绝过短输入。
func hashPassword(raw string) (string, error) {
	if len(raw) < 6 {
		return "", ErrWeakPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// handleListUsers godoc
// @Summary 列出全部用户
// @Tags Users
// @Produce json
// @Success 200 {object} map[string]interface{} "用户列表"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleListUsers 返回全部用户行。
func (m *Module) handleListUsers(c *gin.Context) {
	ctx := c.Request.Context()

	var users []models.User
	if err := m.db.WithContext(ctx).Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

// handleSearchUsers godoc
// @Summary 搜索用户
// @Tags Users
// @Produce json
// @Param search query string false "搜索词"
// @Param page query int false "页码，默认 1"
// @Param page_size query int false "每页数量，默认 10，最大 100"
// @Param sort_column query string false "排序列"
// @Param sort_direction query string false "排序方向 asc|desc"
// @Success 200 {object} map[string]interface{} "搜索结果"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleSearchUsers 分页搜索用户。
func (m *Module) handleSearchUsers(c *gin.Context) {
	ctx := c.Request.Context()

	q, err := store.ParseListQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx := store.ApplySearch(m.db.WithContext(ctx).Model(&models.User{}), q.Search, userSearchColumns)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count users", "details": err.Error()})
		return
	}

	var results []models.User
	if err := store.ApplySort(tx, q, userSortColumns).
		Limit(q.PageSize).Offset(q.Offset()).
		Find(&results).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search users", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results":   results,
		"total":     total,
		"page":      q.Page,
		"page_size": q.PageSize,
	})
}

// handleGetUser godoc
// @Summary 获取用户
// @Tags Users
// @Produce json
// @Param id path int true "用户ID"
// @Success 200 {object} map[string]interface{} "用户"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleGetUser 按 ID 查询用户。
func (m *Module) handleGetUser(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	ctx := c.Request.Context()

	var user models.User
	if err := m.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// handleCreateUser godoc
// @Summary 创建用户
// @Description 新建用户账号，邮箱必须唯一，密码以 bcrypt 哈希存储
// @Tags Users
// @Accept json
// @Produce json
// @Param request body createUserRequest true "用户信息"
// @Success 201 {object} map[string]interface{} "创建成功的用户"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 409 {object} map[string]string "邮箱冲突"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleCreateUser 处理创建用户的请求。
func (m *Module) handleCreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" || email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and email are required"})
		return
	}

	hashed, err := hashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	var count int64
	if err := m.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check email", "details": err.Error()})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": ErrEmailTaken.Error()})
		return
	}

	user := models.User{Name: name, Email: email, Password: hashed}

	if err := m.db.WithContext(ctx).Create(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// handleUpdateUser godoc
// @Summary 更新用户
// @Description 部分更新：仅覆盖请求中出现的字段
// @Tags Users
// @Accept json
// @Produce json
// @Param id path int true "用户ID"
// @Param request body updateUserRequest true "更新内容"
// @Success 200 {object} map[string]interface{} "更新后的用户"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 409 {object} map[string]string "邮箱冲突"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleUpdateUser 处理用户的部分更新。
func (m *Module) handleUpdateUser(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	var user models.User
	if err := m.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user", "details": err.Error()})
		}
		return
	}

	updates := make(map[string]interface{})

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
			return
		}
		updates["name"] = name
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email cannot be empty"})
			return
		}
		if email != user.Email {
			var count int64
			if err := m.db.WithContext(ctx).Model(&models.User{}).Where("email = ? AND id <> ?", email, id).Count(&count).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check email", "details": err.Error()})
				return
			}
			if count > 0 {
				c.JSON(http.StatusConflict, gin.H{"error": ErrEmailTaken.Error()})
				return
			}
		}
		updates["email"] = email
	}
	if req.Password != nil {
		hashed, err := hashPassword(*req.Password)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updates["password"] = hashed
	}

	if len(updates) > 0 {
		if err := m.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user", "details": err.Error()})
			return
		}
	}

	if err := m.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// handleDeleteUser godoc
// @Summary 删除用户
// @Tags Users
// @Produce json
// @Param id path int true "用户ID"
// @Success 200 {object} map[string]string "删除结果"
// @Failure 400 {object} map[string]string "请求参数错误"
// @Failure 404 {object} map[string]string "未找到"
// @Failure 500 {object} map[string]string "服务器错误"
// @Author bizer
// handleDeleteUser 删除用户行。
func (m *Module) handleDeleteUser(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	ctx := c.Request.Context()

	result := m.db.WithContext(ctx).Delete(&models.User{}, "id = ?", id)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user", "details": result.Error.Error()})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
