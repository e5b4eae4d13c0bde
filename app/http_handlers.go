package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/config"
	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/models"
)

var jobRegistry = NewJobRegistry()

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetEngineCapabilities spawns the configured engine long enough to run the
// handshake and returns its declared options verbatim. The settings dialog
// renders from this typed mapping; nothing here interprets the values.
func GetEngineCapabilities(c *gin.Context) {
	cfg, err := config.LoadConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load config"})
		return
	}
	if cfg.Engine.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no ENGINE_PATH configured"})
		return
	}

	eng, err := NewUCIEngine(cfg.Engine.Path, nil)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	defer eng.Close()

	c.JSON(http.StatusOK, models.EngineInfo{
		Name:    eng.Name(),
		Path:    cfg.Engine.Path,
		Options: eng.Capabilities(),
	})
}

// StartAnalysis kicks off a batch run in the background and returns a job
// ID for polling.
func StartAnalysis(c *gin.Context) {
	var req models.JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.InputPGN == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing input_pgn"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load config"})
		return
	}
	applyJobOverrides(cfg, req)

	games, err := ReadGamesFile(cfg.Output.InputPGN)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID := jobRegistry.Create(len(games))
	go runJob(jobID, cfg)

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "total_games": len(games)})
}

func applyJobOverrides(cfg *config.Config, req models.JobRequest) {
	cfg.Output.InputPGN = req.InputPGN
	if req.OutputPGN != "" {
		cfg.Output.OutputPGN = req.OutputPGN
	}
	if req.Depth > 0 {
		cfg.Engine.Depth = req.Depth
	}
	if req.MoveTimeMS > 0 {
		cfg.Engine.MoveTimeMS = req.MoveTimeMS
	}
	if req.Candidates > 0 {
		cfg.Engine.Candidates = req.Candidates
	}
	if req.Perspective != "" {
		cfg.Interval.Perspective = req.Perspective
	}
	cfg.Validate()
}

func runJob(jobID string, cfg *config.Config) {
	jobRegistry.Update(jobID, func(st *models.JobStatus) { st.Status = "running" })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()
	jobRegistry.Attach(jobID, cancel)
	defer jobRegistry.Detach(jobID)

	res, err := RunFiles(ctx, cfg, func(done, total, positions int) {
		jobRegistry.Update(jobID, func(st *models.JobStatus) {
			st.CompletedGames = done
			st.TotalGames = total
			st.Positions = positions
		})
	})
	stopped := errors.Is(ctx.Err(), context.Canceled)
	if err != nil && !stopped {
		log.Printf("job %s failed: %v", jobID, err)
		jobRegistry.Update(jobID, func(st *models.JobStatus) {
			st.Status = "failed"
			st.Error = err.Error()
		})
		return
	}

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer saveCancel()
	if err := SaveRepertoire(saveCtx, jobID, res.Entries); err != nil {
		log.Printf("SaveRepertoire failed for job %s: %v", jobID, err)
	}

	final := "done"
	if stopped {
		final = "stopped"
		log.Printf("job %s stopped: output preserved up to the last completed game", jobID)
	}
	jobRegistry.Update(jobID, func(st *models.JobStatus) {
		st.Status = final
		st.Positions = res.Positions
	})
}

// StopJob cancels a running job. The batch halts at the next ply boundary;
// nothing partial is grafted and output up to the last completed game stays.
func StopJob(c *gin.Context) {
	id := c.Param("jobid")
	if _, ok := jobRegistry.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	if !jobRegistry.Stop(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "job is not running"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": id, "status": "stopping"})
}

func GetJobStatus(c *gin.Context) {
	st, ok := jobRegistry.Get(c.Param("jobid"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	c.JSON(http.StatusOK, st)
}
