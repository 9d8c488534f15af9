package sqlinline

const QEnsureEngineJobs = `--sql engine_jobs.ensure
create table if not exists engine_jobs (
  id          uuid primary key,
  prompt_id   text not null,
  prompt      text not null,
  image       text not null,
  status      text not null,
  images      text[] not null default '{}',
  error       text not null default '',
  created_at  timestamptz not null default now(),
  updated_at  timestamptz not null default now()
);
create index if not exists engine_jobs_created_at_idx on engine_jobs (created_at desc);
`

const QInsertEngineJob = `--sql engine_jobs.insert
insert into engine_jobs (id, prompt_id, prompt, image, status)
values ($1::uuid, $2, $3, $4, $5)
returning created_at, updated_at;
`

const QFinishEngineJob = `--sql engine_jobs.finish
update engine_jobs
set status = $2,
    images = $3::text[],
    error = $4,
    updated_at = now()
where id = $1::uuid;
`

const QListRecentEngineJobs = `--sql engine_jobs.list_recent
select id::text, prompt_id, prompt, image, status, images, error, created_at, updated_at
from engine_jobs
order by created_at desc
limit $1;
`
