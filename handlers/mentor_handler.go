package handlers

import (
	"github.com/edmondmuhia/mentor_marketplace/database"
	"github.com/edmondmuhia/mentor_marketplace/models"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ApplyAsMentorRequest struct {
	Headline         *string `json:"headline"`
	Bio              *string `json:"bio"`
	SessionRateCents int64   `json:"session_rate_cents" validate:"required,gt=0"`
}

type AvailabilityWindowRequest struct {
	Weekday     int `json:"weekday" validate:"min=0,max=6"`
	StartMinute int `json:"start_minute" validate:"min=0,max=1439"`
	EndMinute   int `json:"end_minute" validate:"min=1,max=1440"`
}

func ApplyAsMentor(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req ApplyAsMentorRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	mentor := models.Mentor{
		UserID:           userID,
		Headline:         req.Headline,
		Bio:              req.Bio,
		SessionRateCents: req.SessionRateCents,
		Status:           "approved",
	}
	if err := database.DB.Create(&mentor).Error; err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Mentor profile already exists"})
	}

	if err := database.DB.Model(&models.User{}).Where("id = ?", userID).
		Update("role", "mentor").Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update role"})
	}

	return c.Status(fiber.StatusCreated).JSON(mentor)
}

func GetMentorProfile(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var mentor models.Mentor
	if err := database.DB.Preload("User").First(&mentor, "user_id = ?", userID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Mentor profile not found"})
	}
	return c.JSON(mentor)
}

// SetAvailability replaces the mentor's recurring weekly windows wholesale.
func SetAvailability(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req []AvailabilityWindowRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	for _, w := range req {
		if err := validate.Struct(w); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if w.EndMinute <= w.StartMinute {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Window must end after it starts"})
		}
	}

	windows := make([]models.AvailabilityWindow, 0, len(req))
	for _, w := range req {
		windows = append(windows, models.AvailabilityWindow{
			MentorID:    userID,
			Weekday:     w.Weekday,
			StartMinute: w.StartMinute,
			EndMinute:   w.EndMinute,
		})
	}

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("mentor_id = ?", userID).Delete(&models.AvailabilityWindow{}).Error; err != nil {
			return err
		}
		if len(windows) == 0 {
			return nil
		}
		return tx.Create(&windows).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save availability"})
	}

	return c.JSON(windows)
}

func GetAvailability(c *fiber.Ctx) error {
	userID, err := currentUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var windows []models.AvailabilityWindow
	if err := database.DB.Where("mentor_id = ?", userID).
		Order("weekday asc, start_minute asc").Find(&windows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load availability"})
	}
	return c.JSON(windows)
}
